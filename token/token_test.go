package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T, clock func() time.Time) *Service {
	t.Helper()
	svc, err := New(testSecret, 15*time.Minute, clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestCreateAndVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t, nil)

	tid := int64(7)
	raw, err := svc.CreateAccessToken(Claims{
		Subject:  "42",
		TenantID: &tid,
		Extra:    map[string]any{"role": "admin"},
	}, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	claims, err := svc.VerifyToken(raw)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("subject = %q, want 42", claims.Subject)
	}
	if claims.TenantID == nil || *claims.TenantID != 7 {
		t.Fatalf("tenant_id = %v, want 7", claims.TenantID)
	}
	if role, _ := claims.Extra["role"].(string); role != "admin" {
		t.Fatalf("extra role = %v, want admin", claims.Extra["role"])
	}

	uid, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if uid != 42 {
		t.Fatalf("UserID = %d, want 42", uid)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	svc := newTestService(t, nil)

	raw, err := svc.CreateAccessToken(Claims{Subject: "1"}, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	if _, err := svc.VerifyToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := newTestService(t, nil)
	other, err := New([]byte("another-secret-another-secret-xx"), 15*time.Minute, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := other.CreateAccessToken(Claims{Subject: "1"}, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, err := svc.VerifyToken(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	svc := newTestService(t, clock)

	raw, err := svc.CreateAccessToken(Claims{Subject: "1"}, time.Minute)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.VerifyToken(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t, nil)
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := svc.VerifyToken(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("VerifyToken(%q) error = %v, want ErrInvalidToken", raw, err)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	h1 := Hash("abc")
	h2 := Hash("abc")
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(h1))
	}
	if Hash("abd") == h1 {
		t.Fatal("distinct inputs produced the same hash")
	}
}

func TestGenerateRefreshTokenShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		tok, err := GenerateRefreshToken()
		if err != nil {
			t.Fatalf("GenerateRefreshToken: %v", err)
		}
		if len(tok) != 64 {
			t.Fatalf("token length = %d, want 64", len(tok))
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Fatalf("token %q is not URL-safe", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = true
	}
}

func TestUserIDNonNumericSubject(t *testing.T) {
	c := Claims{Subject: "admin"}
	if _, err := c.UserID(); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("UserID error = %v, want ErrInvalidToken", err)
	}
}
