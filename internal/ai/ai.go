// Package ai defines the interpretation collaborator.
//
// Interpretation failure is isolated from billing: the creation flow
// catches it and completes chart-only at the resolved cost. Re-generation
// later goes through the deferred path, which is idempotent and free.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/google/uuid"
)

// Interpreter generates structured interpretation text from chart data.
type Interpreter interface {
	Interpret(ctx context.Context, params InterpretParams) (*Result, error)
}

// InterpretParams contains parameters for one interpretation request.
type InterpretParams struct {
	Action     domain.ActionType // reading vs comparison shapes the prompt
	ChartData  json.RawMessage   // enriched chart output from the calculation engine
	ArtifactID uuid.UUID         // for tracking
	AccountID  uuid.UUID         // for usage attribution
}

// Result contains the generated sections plus provenance and token usage.
type Result struct {
	Sections map[string]string
	Usage    UsageInfo
}

// UsageInfo tracks provider usage for attribution and monitoring.
type UsageInfo struct {
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Error codes for interpreter operations.
var (
	// ERateLimit indicates the provider rate limit has been exceeded
	ERateLimit = errors.New("ai provider rate limit exceeded")

	// EInvalidChart indicates the chart payload could not be interpreted
	EInvalidChart = errors.New("invalid chart data")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("ai request timed out")

	// EUnavailable indicates the AI service is temporarily unavailable
	EUnavailable = errors.New("ai service temporarily unavailable")

	// EUnauthorized indicates invalid API credentials
	EUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
