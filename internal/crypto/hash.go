package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// saltSize is the number of random bytes in a generated salt.
const saltSize = 16

// Supported digest algorithms.
const (
	AlgorithmSHA512  = "sha512"
	AlgorithmSHA3    = "sha3-512"
	AlgorithmBLAKE2b = "blake2b-512"
)

var (
	ErrInvalidSalt      = errors.New("invalid salt")
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
)

// Hash returns base64(SHA-512(salt || content)).
func Hash(content, salt []byte) string {
	return sum(sha512.New(), content, salt)
}

func sum(h hash.Hash, content, salt []byte) string {
	h.Write(salt)
	h.Write(content)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// NewSalt returns a fresh base64-encoded salt from crypto/rand.
func NewSalt() (string, error) {
	b := make([]byte, saltSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// SaltEqual compares two salts in constant time.
func SaltEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Hasher digests content with a fixed per-process salt.
type Hasher struct {
	salt      []byte
	algorithm string
	newHash   func() hash.Hash
}

// NewHasher decodes a base64 salt and selects the digest algorithm. An empty
// salt generates a new one; an empty algorithm selects SHA-512.
func NewHasher(saltB64, algorithm string) (*Hasher, error) {
	newHash, err := digestFor(algorithm)
	if err != nil {
		return nil, err
	}
	if algorithm == "" {
		algorithm = AlgorithmSHA512
	}

	if saltB64 == "" {
		if saltB64, err = NewSalt(); err != nil {
			return nil, err
		}
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidSalt)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSalt)
	}

	return &Hasher{salt: salt, algorithm: algorithm, newHash: newHash}, nil
}

// Sum hashes content with the hasher's salt.
func (h *Hasher) Sum(content []byte) string {
	return sum(h.newHash(), content, h.salt)
}

// Algorithm returns the configured digest name.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

func digestFor(algorithm string) (func() hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "", AlgorithmSHA512:
		return sha512.New, nil
	case AlgorithmSHA3:
		return sha3.New512, nil
	case AlgorithmBLAKE2b:
		return func() hash.Hash {
			h, _ := blake2b.New512(nil) // only fails for oversized keys
			return h
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
