// Package anthropic implements the ai.Interpreter interface using
// Anthropic's Claude API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/astraea-labs/astraea/internal/ai"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-3-5-sonnet-20241022"

	// ProviderName identifies this provider in stored provenance
	ProviderName = "anthropic"

	// MaxChartSize caps the chart payload forwarded in the prompt (256KB)
	MaxChartSize = 256 * 1024
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
}

// Provider implements the ai.Interpreter interface using Claude
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic interpreter
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = 1 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Interpret generates interpretation sections for the given chart data.
func (p *Provider) Interpret(ctx context.Context, params ai.InterpretParams) (*ai.Result, error) {
	startTime := time.Now()

	if len(params.ChartData) == 0 {
		return nil, ai.WrapError("interpret", ai.EInvalidChart)
	}
	if len(params.ChartData) > MaxChartSize {
		return nil, ai.WrapError("interpret",
			fmt.Errorf("%w: chart payload %d exceeds maximum %d", ai.EInvalidChart, len(params.ChartData), MaxChartSize))
	}

	body, err := p.buildRequestBody(params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	sections, err := parseSections(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	return &ai.Result{
		Sections: sections,
		Usage: ai.UsageInfo{
			Provider:     ProviderName,
			Model:        p.config.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Duration:     time.Since(startTime),
		},
	}, nil
}

func (p *Provider) buildRequestBody(params ai.InterpretParams) ([]byte, error) {
	reqBody := apiRequest{
		Model:     p.config.Model,
		MaxTokens: 4096,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContent{
					{
						Type: "text",
						Text: buildInterpretationPrompt(params.Action, params.ChartData),
					},
				},
			},
		},
	}
	return json.Marshal(reqBody)
}

// executeWithRetry executes the request with exponential backoff retry.
// The body is rebuilt each attempt because it is consumed on send.
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !ai.IsRetryable(err) {
			return nil, err
		}
		if attempt >= p.config.MaxRetries {
			break
		}

		delay := p.config.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying AI request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", APIBaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		// Network errors are typically retryable
		return nil, ai.EUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to domain errors
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized:
		return ai.EUnauthorized
	case http.StatusTooManyRequests:
		return ai.ERateLimit
	case http.StatusRequestTimeout:
		return ai.ETimeout
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ai.EUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// parseSections extracts the section map from the model's JSON reply.
func parseSections(resp *apiResponse) (map[string]string, error) {
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	var textContent string
	for _, content := range resp.Content {
		if content.Type == "text" {
			textContent = content.Text
			break
		}
	}
	if textContent == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	// The model occasionally fences the JSON in markdown
	textContent = strings.TrimSpace(textContent)
	textContent = strings.TrimPrefix(textContent, "```json")
	textContent = strings.TrimPrefix(textContent, "```")
	textContent = strings.TrimSuffix(textContent, "```")

	var parsed struct {
		Sections map[string]string `json:"sections"`
	}
	if err := json.Unmarshal([]byte(textContent), &parsed); err != nil {
		return nil, fmt.Errorf("parse sections JSON: %w", err)
	}
	if len(parsed.Sections) == 0 {
		return nil, fmt.Errorf("response contained no sections")
	}
	return parsed.Sections, nil
}

// API request/response types

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	Content []apiContent `json:"content"`
	Usage   apiUsage     `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
