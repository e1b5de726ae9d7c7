package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini calls the Gemini API through the genai client.
type Gemini struct {
	client  *genai.Client
	breaker *gobreaker.CircuitBreaker[string]
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini responder from cfg.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini responder requires an api key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Gemini{
		client:  client,
		breaker: newBreaker("gemini", cfg),
		model:   model,
		timeout: timeout,
	}, nil
}

// Respond implements Responder.
func (g *Gemini) Respond(ctx context.Context, message string, maxOutputTokens int) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}

	text, err := g.breaker.Execute(func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(message), &genai.GenerateContentConfig{
			MaxOutputTokens: int32(maxOutputTokens),
		})
		if err != nil {
			return "", fmt.Errorf("gemini request failed: %w", err)
		}
		return result.Text(), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return text, err
}
