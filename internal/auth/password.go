package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Prefix marks digests produced by the passlib-compatible PBKDF2-SHA256
// scheme. Stored hashes without it predate the migration.
const PBKDF2Prefix = "$pbkdf2-sha256$"

const (
	DefaultPBKDF2Rounds = 29000
	pbkdf2SaltLen       = 16
	pbkdf2KeyLen        = 32
)

// PasswordHasher hashes and verifies passwords for a single digest scheme.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
	Recognizes(encoded string) bool
}

// PBKDF2Hasher produces $pbkdf2-sha256$<rounds>$<salt>$<checksum> digests
// with passlib's adapted base64 alphabet.
type PBKDF2Hasher struct {
	Rounds int
}

var _ PasswordHasher = PBKDF2Hasher{}

// Hash derives a fresh salted digest of password.
func (h PBKDF2Hasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	rounds := h.Rounds
	if rounds <= 0 {
		rounds = DefaultPBKDF2Rounds
	}
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := pbkdf2.Key([]byte(password), salt, rounds, pbkdf2KeyLen, sha256.New)
	return PBKDF2Prefix + strconv.Itoa(rounds) + "$" + ab64Encode(salt) + "$" + ab64Encode(sum), nil
}

// Verify reports whether password matches encoded. A digest that cannot be
// parsed yields ErrHashNotMigrated.
func (h PBKDF2Hasher) Verify(encoded, password string) (bool, error) {
	if !h.Recognizes(encoded) {
		return false, ErrHashNotMigrated
	}
	parts := strings.Split(strings.TrimPrefix(encoded, PBKDF2Prefix), "$")
	if len(parts) != 3 {
		return false, fmt.Errorf("%w: malformed digest", ErrHashNotMigrated)
	}
	rounds, err := strconv.Atoi(parts[0])
	if err != nil || rounds <= 0 {
		return false, fmt.Errorf("%w: invalid rounds", ErrHashNotMigrated)
	}
	salt, err := ab64Decode(parts[1])
	if err != nil {
		return false, fmt.Errorf("%w: invalid salt", ErrHashNotMigrated)
	}
	want, err := ab64Decode(parts[2])
	if err != nil || len(want) == 0 {
		return false, fmt.Errorf("%w: invalid checksum", ErrHashNotMigrated)
	}
	got := pbkdf2.Key([]byte(password), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Recognizes reports whether encoded belongs to this scheme.
func (PBKDF2Hasher) Recognizes(encoded string) bool {
	return strings.HasPrefix(encoded, PBKDF2Prefix)
}

func ab64Encode(b []byte) string {
	return strings.ReplaceAll(base64.RawStdEncoding.EncodeToString(b), "+", ".")
}

func ab64Decode(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.ReplaceAll(s, ".", "+"))
}
