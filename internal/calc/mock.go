package calc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Mock is a deterministic Engine for tests and development. It counts
// invocations so tests can assert the reject-before-spend ordering: a
// request rejected for insufficient credits must never reach the engine.
type Mock struct {
	calls int64

	// Err, when set, is returned by every call.
	Err error
}

// NewMock creates a mock engine.
func NewMock() *Mock {
	return &Mock{}
}

// CalculateChart returns a small synthetic chart payload.
func (m *Mock) CalculateChart(_ context.Context, req ChartRequest) (*ChartResult, error) {
	atomic.AddInt64(&m.calls, 1)
	if m.Err != nil {
		return nil, m.Err
	}
	payload := map[string]any{
		"action":  string(req.Action),
		"subject": req.Subject,
		"period":  req.TargetPeriod,
		"pillars": []string{"year", "month", "day", "hour"},
	}
	if req.Partner != nil {
		payload["partner"] = req.Partner
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mock chart: %w", err)
	}
	return &ChartResult{Data: data}, nil
}

// Calls returns how many times the engine was invoked.
func (m *Mock) Calls() int64 {
	return atomic.LoadInt64(&m.calls)
}
