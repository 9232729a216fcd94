// Package password hashes and verifies credentials with argon2id, encoded
// in PHC string format so parameters travel with the hash.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// ErrInvalidHash is returned when a stored hash cannot be parsed.
var ErrInvalidHash = errors.New("invalid password hash")

// Params are the argon2id cost settings. DefaultParams tracks the current
// OWASP baseline.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams is used when a zero Params is passed to NewHasher.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes and verifies passwords.
type Hasher struct {
	params Params
}

// NewHasher validates params and returns a [Hasher]. A zero Params takes
// DefaultParams.
func NewHasher(params Params) (*Hasher, error) {
	if params == (Params{}) {
		params = DefaultParams
	}
	if params.Memory < 8*1024 {
		return nil, errors.New("password: memory below 8 MiB")
	}
	if params.Time < 1 {
		return nil, errors.New("password: time cost below 1")
	}
	if params.Parallelism < 1 {
		return nil, errors.New("password: parallelism below 1")
	}
	if params.SaltLength < 16 || params.KeyLength < 16 {
		return nil, errors.New("password: salt and key must be at least 16 bytes")
	}
	return &Hasher{params: params}, nil
}

// Hash derives an argon2id hash and returns it PHC-encoded.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password: empty password")
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify compares password against an encoded hash in constant time with
// the parameters stored in the hash itself.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt,
		p.Time, p.Memory, p.Parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with weaker
// parameters than the hasher currently carries.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, _, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.Memory < h.params.Memory ||
		p.Time < h.params.Time ||
		p.Parallelism < h.params.Parallelism ||
		uint32(len(key)) != h.params.KeyLength, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return Params{}, nil, nil, ErrInvalidHash
	}
	return p, salt, key, nil
}
