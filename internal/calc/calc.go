// Package calc defines the chart-calculation collaborator.
//
// Calculation is a synchronous request/response call that happens before
// any charge is attempted: a calculation failure aborts the whole action
// with nothing debited.
package calc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/astraea-labs/astraea/internal/domain"
)

// Engine computes structured chart data from normalized birth parameters.
type Engine interface {
	CalculateChart(ctx context.Context, req ChartRequest) (*ChartResult, error)
}

// ChartRequest carries the normalized inputs for one calculation.
type ChartRequest struct {
	Action       domain.ActionType
	Subject      domain.BirthData
	Partner      *domain.BirthData // comparisons only
	TargetPeriod string            // annual readings and recalculation
}

// ChartResult is the structured chart output. The core treats the payload
// as opaque; section presence is decided by the AI interpretation, not the
// chart.
type ChartResult struct {
	Data json.RawMessage
}

// Sentinel errors for calculation failures.
var (
	// ErrInvalidInput indicates the engine rejected the birth parameters.
	ErrInvalidInput = errors.New("calculation engine rejected input")

	// ErrUnavailable indicates the engine is temporarily unreachable.
	ErrUnavailable = errors.New("calculation engine unavailable")
)

// IsRetryable returns true for transient failures worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// WrapError wraps an error with context about the calculation operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("calc %s: %w", operation, err)
}
