package calc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// ClientConfig configures the HTTP calculation client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
}

// Client calls a remote calculation engine over HTTP.
type Client struct {
	config ClientConfig
	client *http.Client
	logger *slog.Logger
}

// NewClient creates an HTTP calculation client.
func NewClient(config ClientConfig, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("calculation engine base URL is required")
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = 500 * time.Millisecond
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 15 * time.Second
	}

	return &Client{
		config: config,
		client: &http.Client{Timeout: config.RequestTimeout},
		logger: logger,
	}, nil
}

type chartAPIRequest struct {
	Action       string          `json:"action"`
	Subject      json.RawMessage `json:"subject"`
	Partner      json.RawMessage `json:"partner,omitempty"`
	TargetPeriod string          `json:"target_period,omitempty"`
}

// CalculateChart posts the request and retries transient failures with
// exponential backoff.
func (c *Client) CalculateChart(ctx context.Context, req ChartRequest) (*ChartResult, error) {
	subject, err := json.Marshal(req.Subject)
	if err != nil {
		return nil, WrapError("marshal subject", err)
	}
	body := chartAPIRequest{
		Action:       string(req.Action),
		Subject:      subject,
		TargetPeriod: req.TargetPeriod,
	}
	if req.Partner != nil {
		partner, err := json.Marshal(req.Partner)
		if err != nil {
			return nil, WrapError("marshal partner", err)
		}
		body.Partner = partner
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, WrapError("marshal request", err)
	}

	backoff := retry.WithMaxRetries(uint64(c.config.MaxRetries),
		retry.NewExponential(c.config.RetryBaseDelay))

	var result *ChartResult
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := c.doRequest(ctx, payload)
		if err != nil {
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, WrapError("calculate chart", err)
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, payload []byte) (*ChartResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/charts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &ChartResult{Data: json.RawMessage(raw)}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("calculation engine transient failure", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidInput, resp.StatusCode, raw)
	}
}
