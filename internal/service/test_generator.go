package service

import (
	"context"
	"fmt"
	"sync"
)

// TestGenerator hands out scripted codes, then sequential ones once the script runs out
type TestGenerator struct {
	mu      sync.Mutex
	codes   []string
	counter int
}

// NewTestGenerator creates a new test generator
func NewTestGenerator(codes ...string) *TestGenerator {
	return &TestGenerator{codes: codes}
}

// GenerateShortCode returns the next scripted code
func (g *TestGenerator) GenerateShortCode(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.codes) > 0 {
		code := g.codes[0]
		g.codes = g.codes[1:]
		return code, nil
	}
	g.counter++
	return fmt.Sprintf("test%04d", g.counter), nil
}

// Type returns the generator type
func (g *TestGenerator) Type() string {
	return "test"
}

// Close performs cleanup
func (g *TestGenerator) Close() error {
	return nil
}
