package generator

import (
	"context"
	"fmt"
)

// Generator produces text for a prompt. The gate depends only on this
// interface; the real Gemini client and the static test double both satisfy
// it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Static is a canned-response generator used when no API key is configured
// and in tests.
type Static struct{}

func (Static) Generate(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf("Mock response for: %s", prompt), nil
}
