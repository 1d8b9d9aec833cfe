// Package mock provides a canned ai.Interpreter for testing and development.
package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/astraea-labs/astraea/internal/ai"
	"github.com/astraea-labs/astraea/internal/domain"
)

// Provider is a mock interpreter.
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	InterpretResponse *ai.Result
	InterpretError    error

	// Call tracking for testing
	InterpretCalls int
}

// New creates a new mock interpreter
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Interpret returns a canned interpretation covering every unlockable section.
func (p *Provider) Interpret(ctx context.Context, params ai.InterpretParams) (*ai.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.InterpretCalls++

	if p.InterpretError != nil {
		return nil, p.InterpretError
	}
	if p.InterpretResponse != nil {
		return p.InterpretResponse, nil
	}

	return &ai.Result{
		Sections: map[string]string{
			"overview":                  "A mock overview of the chart.",
			domain.SectionCareer:        "Mock career interpretation.",
			domain.SectionWealth:        "Mock wealth interpretation.",
			domain.SectionRelationships: "Mock relationships interpretation.",
			domain.SectionHealth:        "Mock health interpretation.",
			domain.SectionTiming:        "Mock timing interpretation.",
		},
		Usage: ai.UsageInfo{
			Provider:     "mock",
			Model:        "mock-model-v1",
			InputTokens:  100,
			OutputTokens: 400,
			Duration:     5 * time.Millisecond,
		},
	}, nil
}

// Calls returns how many times Interpret was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.InterpretCalls
}
