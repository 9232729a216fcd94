package authcore

import "github.com/avenide/authcore/repo"

// AuthTokens is what a successful login or refresh hands back to the
// transport layer.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthResult is the resolved identity of an authenticated request.
type AuthResult struct {
	User        *repo.User
	Tenant      *repo.Tenant
	Permissions []string
}

// HasPermission reports whether the resolved identity carries perm.
func (r *AuthResult) HasPermission(perm string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
