package shortener

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Generator defines the interface for generating short codes
type Generator interface {
	// GenerateShortCode returns a candidate code; uniqueness is checked by the caller
	GenerateShortCode(ctx context.Context) (string, error)

	// Type returns the type identifier of the generator
	Type() string

	// Close performs cleanup when the generator is no longer needed
	Close() error
}

// Config holds configuration for short code generation
type Config struct {
	CodeLength  int           `json:"code_length"`
	MaxAttempts int           `json:"max_attempts"`
	DefaultTTL  time.Duration `json:"default_ttl"` // zero means links never expire
}

// GeneratorType constants
const (
	TypeRandom = "random"
)

const (
	MinCodeLength = 6
	MaxCodeLength = 10
)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		CodeLength:  7,
		MaxAttempts: 10,
	}
}

// Validate checks the configuration values
func (c Config) Validate() error {
	if c.CodeLength < MinCodeLength || c.CodeLength > MaxCodeLength {
		return fmt.Errorf("code length must be between %d and %d, got: %d", MinCodeLength, MaxCodeLength, c.CodeLength)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got: %d", c.MaxAttempts)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("default TTL cannot be negative, got: %v", c.DefaultTTL)
	}
	return nil
}

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]{6,10}$`)

// ValidCode reports whether code has the shape of a short code
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
