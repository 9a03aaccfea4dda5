package shortener

import (
	"context"
	"crypto/rand"
	"fmt"
)

const (
	// Base62 characters: 0-9, a-z, A-Z (case sensitive)
	base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Largest multiple of 62 that fits in a byte; bytes at or above it are rejected to avoid modulo bias
	rejectionThreshold = 248
)

// RandomGenerator produces uniformly random base62 codes
type RandomGenerator struct {
	length int
}

// NewRandomGenerator creates a generator for codes of the given length
func NewRandomGenerator(length int) *RandomGenerator {
	return &RandomGenerator{length: length}
}

// GenerateShortCode returns a random code of the configured length
func (g *RandomGenerator) GenerateShortCode(ctx context.Context) (string, error) {
	code := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)

	for len(code) < g.length {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= rejectionThreshold {
				continue
			}
			code = append(code, base62Chars[b%62])
			if len(code) == g.length {
				break
			}
		}
	}

	return string(code), nil
}

// Length returns the code length
func (g *RandomGenerator) Length() int {
	return g.length
}

// Type returns the generator type
func (g *RandomGenerator) Type() string {
	return TypeRandom
}

// Close performs cleanup
func (g *RandomGenerator) Close() error {
	return nil
}

// Ensure RandomGenerator implements Generator interface
var _ Generator = (*RandomGenerator)(nil)
