package password

import (
	"errors"
	"strings"
	"testing"
)

// Low-cost parameters keep the test suite fast.
var testParams = Params{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testParams)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding: %q", encoded)
	}

	ok, err := h.Verify("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}

	ok, err = h.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := newTestHasher(t)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192$c2FsdA$aGFzaA",
	} {
		if _, err := h.Verify("pw", encoded); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("Verify(%q) = %v, want ErrInvalidHash", encoded, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newTestHasher(t)
	encoded, err := weak.Hash("some password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	same, err := weak.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash: %v", err)
	}
	if same {
		t.Fatal("hash with current params flagged for rehash")
	}

	stronger, err := NewHasher(Params{
		Memory:      16 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	upgrade, err := stronger.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash: %v", err)
	}
	if !upgrade {
		t.Fatal("weaker hash not flagged for rehash")
	}
}

func TestZeroParamsUseDefaults(t *testing.T) {
	h, err := NewHasher(Params{})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if h.params != DefaultParams {
		t.Fatalf("params = %+v, want DefaultParams", h.params)
	}
}
