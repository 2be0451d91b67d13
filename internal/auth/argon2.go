// Package auth provides password hashing, session tokens and request auth context.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params is an Argon2id cost profile.
type Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var (
	// PasswordParams hash account passwords.
	PasswordParams = Params{Memory: 64 * 1024, Time: 3, Threads: 4, KeyLen: 32, SaltLen: 16}

	// TokenParams hash session tokens. Tokens carry 128 random bits and are
	// verified on every request that misses the session cache, so the cost
	// is the lighter OWASP profile.
	TokenParams = Params{Memory: 19 * 1024, Time: 2, Threads: 1, KeyLen: 32, SaltLen: 16}
)

var (
	// ErrInvalidHash indicates the hash format is invalid.
	ErrInvalidHash = errors.New("invalid hash format")
	// ErrIncompatibleVersion indicates the hash version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// dummyHash is verified against when an account does not exist so that
// unknown emails and wrong passwords take the same time.
var dummyHash = "$argon2id$v=19$m=65536,t=3,p=4$c21hcnRkaWV0LWR1bW15$" +
	"L3FhY1N0b0xYVlRJZGJJdmZsQ2F3eVdRc2ZQdmV6TVQ"

// HashPassword hashes an account password with PasswordParams.
func HashPassword(password string) (string, error) {
	return Hash(password, PasswordParams)
}

// HashToken hashes a session token with TokenParams.
func HashToken(token string) (string, error) {
	return Hash(token, TokenParams)
}

// Hash derives an Argon2id key for secret and encodes it as a PHC string:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
func Hash(secret string, p Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encodedHash. The cost is
// read from the hash, so older profiles keep verifying.
func VerifyPassword(password, encodedHash string) (bool, error) {
	return verify(password, encodedHash)
}

// VerifyToken reports whether a session token matches its stored hash.
func VerifyToken(token, encodedHash string) (bool, error) {
	return verify(token, encodedHash)
}

func verify(secret, encodedHash string) (bool, error) {
	p, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(secret), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsRehash reports whether encodedHash was made with a weaker profile
// than p and should be replaced after the next successful login.
func NeedsRehash(encodedHash string, p Params) bool {
	got, _, key, err := decodeHash(encodedHash)
	if err != nil {
		return true
	}
	return got.Memory < p.Memory || got.Time < p.Time || got.Threads < p.Threads ||
		uint32(len(key)) < p.KeyLen
}

func decodeHash(encoded string) (Params, []byte, []byte, error) {
	var p Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return p, nil, nil, ErrInvalidHash
	}
	if v, err := strconv.Atoi(version); err != nil {
		return p, nil, nil, ErrInvalidHash
	} else if v != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}

	for _, field := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return p, nil, nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return p, nil, nil, ErrInvalidHash
		}
		switch name {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return p, nil, nil, ErrInvalidHash
			}
			p.Threads = uint8(n)
		default:
			return p, nil, nil, ErrInvalidHash
		}
	}
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}

// BurnVerify runs a verification against a fixed hash and discards the result.
func BurnVerify(password string) {
	_, _ = VerifyPassword(password, dummyHash)
}

// QuickHash returns a truncated SHA-256 of a session token for cache keys.
// It is never stored as a credential.
func QuickHash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}
