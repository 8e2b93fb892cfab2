// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hashing algorithms, as accepted by HasherConfig.Algorithm.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Upper bounds accepted when decoding a stored argon2id digest.
const (
	maxArgon2Time   = 64
	maxArgon2Memory = 1 << 20 // KiB, 1 GiB
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher turns secrets into salted one-way digests and checks them.
// It is used for passwords and for every token digest.
type PasswordHasher interface {
	// Hash produces a salted digest of the secret.
	Hash(secret string) (string, error)

	// Verify reports whether secret matches digest. An empty or malformed
	// digest is a mismatch, never an error.
	Verify(digest, secret string) bool

	// NeedsRehash reports whether digest was produced by another algorithm
	// or with weaker parameters than this hasher is configured for.
	NeedsRehash(digest string) bool
}

// HasherConfig selects and tunes a PasswordHasher.
type HasherConfig struct {
	Algorithm string
	// BcryptCost is ignored in test mode.
	BcryptCost int
	// TestMode selects the cheapest parameters of the algorithm.
	TestMode bool
}

// NewPasswordHasher builds the hasher described by cfg.
func NewPasswordHasher(cfg HasherConfig) (PasswordHasher, error) {
	switch cfg.Algorithm {
	case "", AlgorithmBcrypt:
		cost := cfg.BcryptCost
		if cfg.TestMode {
			cost = bcrypt.MinCost
		}
		return NewBcryptHasher(cost)
	case AlgorithmArgon2id:
		if cfg.TestMode {
			return NewArgon2idHasher(TestArgon2Params), nil
		}
		return NewArgon2idHasher(DefaultArgon2Params), nil
	default:
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("algorithm", cfg.Algorithm).
			Errorf("unsupported password hashing algorithm %q", cfg.Algorithm)
	}
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A zero cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash produces a bcrypt digest of the secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("algorithm", AlgorithmBcrypt).Wrap(err)
	}
	return string(digest), nil
}

// Verify reports whether secret matches a bcrypt digest.
func (h *BcryptHasher) Verify(digest, secret string) bool {
	if digest == "" || !isBcrypt(digest) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// NeedsRehash is true for non-bcrypt digests and for bcrypt digests below the configured cost.
func (h *BcryptHasher) NeedsRehash(digest string) bool {
	if !isBcrypt(digest) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost < h.cost
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

// Argon2Params tunes Argon2idHasher.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params are the OWASP-recommended argon2id parameters.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// TestArgon2Params keep test suites fast. Never use them in production.
var TestArgon2Params = Argon2Params{
	Time:    1,
	Memory:  1024,
	Threads: 1,
	SaltLen: 16,
	KeyLen:  32,
}

// Argon2idHasher implements PasswordHasher using argon2id in PHC string format.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

// Hash produces an argon2id digest of the secret.
func (h *Argon2idHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches an argon2id digest.
func (h *Argon2idHasher) Verify(digest, secret string) bool {
	decoded, err := decodeArgon2id(digest)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(secret), decoded.salt, decoded.params.Time,
		decoded.params.Memory, decoded.params.Threads, uint32(len(decoded.key))) //nolint:gosec // bounded in decodeArgon2id
	return subtle.ConstantTimeCompare(computed, decoded.key) == 1
}

// NeedsRehash is true for non-argon2id digests and for weaker parameters.
func (h *Argon2idHasher) NeedsRehash(digest string) bool {
	decoded, err := decodeArgon2id(digest)
	if err != nil {
		return true
	}
	p := decoded.params
	return p.Time < h.params.Time || p.Memory < h.params.Memory || p.Threads < h.params.Threads
}

type argon2idDigest struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func decodeArgon2id(encoded string) (*argon2idDigest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != AlgorithmArgon2id {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	// argon2.IDKey panics on zero rounds; the caps keep a forged digest from
	// pinning CPU or memory during Verify.
	if iterations == 0 || iterations > maxArgon2Time {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("time value %d out of range", iterations)
	}
	if memory == 0 || memory > maxArgon2Memory {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("memory value %d out of range", memory)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return &argon2idDigest{
		params: Argon2Params{
			Time:    iterations,
			Memory:  memory,
			Threads: uint8(threads),
		},
		salt: salt,
		key:  key,
	}, nil
}
