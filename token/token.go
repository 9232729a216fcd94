// Package token issues and verifies the two token kinds used by authcore:
// signed JWT access tokens and opaque random refresh tokens.
//
// # Hashing
//
// Raw tokens never touch durable storage. Hash produces the sha256 hex
// digest used as the cache key suffix and as the refresh_tokens.token_hash
// column value.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const refreshTokenBytes = 48

var (
	// ErrInvalidToken covers every verification failure: bad signature,
	// malformed payload, expiry, wrong algorithm. Callers must not be able
	// to distinguish the cases.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSubject is returned when a verified token carries no sub claim.
	ErrMissingSubject = errors.New("token has no subject")
)

// Claims is the decoded view of an access token payload.
type Claims struct {
	Subject   string
	TenantID  *int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// UserID parses the subject as a numeric user ID.
func (c Claims) UserID() (int64, error) {
	if c.Subject == "" {
		return 0, ErrMissingSubject
	}
	var id int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &id); err != nil {
		return 0, fmt.Errorf("%w: non-numeric subject", ErrInvalidToken)
	}
	return id, nil
}

// Service signs and verifies access tokens with a single HS256 secret.
type Service struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// New creates a token [Service]. A nil clock defaults to time.Now.
func New(secret []byte, accessTTL time.Duration, clock func() time.Time) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if accessTTL <= 0 {
		return nil, errors.New("token: non-positive access TTL")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{secret: secret, accessTTL: accessTTL, now: clock}, nil
}

// CreateAccessToken signs a JWT for the given claims. A zero ttl uses the
// configured access TTL; ExpiresAt on the input claims is ignored.
func (s *Service) CreateAccessToken(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = s.accessTTL
	}
	now := s.now().UTC()

	payload := jwt.MapClaims{
		"sub": claims.Subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if claims.TenantID != nil {
		payload["tenant_id"] = *claims.TenantID
	}
	for k, v := range claims.Extra {
		if _, reserved := payload[k]; reserved {
			continue
		}
		payload[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a raw access token. Any failure maps to
// ErrInvalidToken.
func (s *Service) VerifyToken(raw string) (Claims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return claimsFromMap(mc)
}

func claimsFromMap(mc jwt.MapClaims) (Claims, error) {
	out := Claims{Extra: make(map[string]any)}

	sub, _ := mc["sub"].(string)
	if sub == "" {
		return Claims{}, ErrInvalidToken
	}
	out.Subject = sub

	if iat, ok := numericClaim(mc["iat"]); ok {
		out.IssuedAt = time.Unix(iat, 0).UTC()
	}
	exp, ok := numericClaim(mc["exp"])
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	out.ExpiresAt = time.Unix(exp, 0).UTC()

	if tid, ok := numericClaim(mc["tenant_id"]); ok {
		out.TenantID = &tid
	}

	for k, v := range mc {
		switch k {
		case "sub", "iat", "exp", "tenant_id":
		default:
			out.Extra[k] = v
		}
	}
	return out, nil
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// GenerateRefreshToken returns an opaque URL-safe random token. The raw
// value goes to the client; only Hash(raw) is stored.
func GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("token: entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the sha256 hex digest of a raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
