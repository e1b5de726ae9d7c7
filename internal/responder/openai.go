package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultTimeout       = 30 * time.Second
)

// openAIRequest is the payload for the Responses API.
type openAIRequest struct {
	Model           string `json:"model"`
	Input           string `json:"input"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
}

type openAIResponse struct {
	OutputText string         `json:"output_text,omitempty"`
	Output     []openAIOutput `json:"output"`
	Error      *openAIError   `json:"error,omitempty"`
}

type openAIOutput struct {
	Type    string          `json:"type"`
	Content []openAIContent `json:"content"`
}

type openAIContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// OpenAI calls the OpenAI Responses API behind a circuit breaker.
type OpenAI struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	baseURL string
	model   string
	apiKey  string
	timeout time.Duration
}

// NewOpenAI creates an OpenAI responder from cfg.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai responder requires an api key")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &OpenAI{
		client:  &http.Client{},
		breaker: newBreaker("openai", cfg),
		baseURL: baseURL,
		model:   model,
		apiKey:  cfg.APIKey,
		timeout: timeout,
	}, nil
}

// Respond implements Responder.
func (o *OpenAI) Respond(ctx context.Context, message string, maxOutputTokens int) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}

	text, err := o.breaker.Execute(func() (string, error) {
		return o.call(ctx, message, maxOutputTokens)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return text, err
}

func (o *OpenAI) call(ctx context.Context, message string, maxOutputTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(openAIRequest{
		Model:           o.model,
		Input:           message,
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read openai response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode openai response (status %d): %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai API returned status %d", resp.StatusCode)
	}

	return parsed.text(), nil
}

// text returns output_text when present, otherwise the concatenated
// output_text parts of every message item.
func (r *openAIResponse) text() string {
	if r.OutputText != "" {
		return r.OutputText
	}

	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				sb.WriteString(c.Text)
			}
		}
	}
	return sb.String()
}

// newBreaker builds the circuit breaker shared by network-backed providers.
func newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker[string] {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEmptyMessage)
		},
	})
}
