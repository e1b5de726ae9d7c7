// Package responder adapts conversational model providers to a single
// text-in, text-out call that the quota gate treats as a black box.
package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/talkgate/internal/metrics"
)

// Responder answers a user message with at most maxOutputTokens of text.
type Responder interface {
	Respond(ctx context.Context, message string, maxOutputTokens int) (string, error)
}

var (
	// ErrCircuitOpen is returned while the provider's circuit breaker is open.
	ErrCircuitOpen = errors.New("responder: circuit open")

	// ErrEmptyMessage is returned when there is nothing to send.
	ErrEmptyMessage = errors.New("responder: empty message")
)

// Config selects and configures a provider.
type Config struct {
	Provider           string
	Model              string
	APIKey             string
	BaseURL            string
	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// New builds the responder named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Responder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	case "gemini":
		return NewGemini(ctx, cfg)
	case "echo":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unsupported responder provider: %s", cfg.Provider)
	}
}

// Instrumented records latency and failures of another Responder.
type Instrumented struct {
	next     Responder
	provider string
}

// Instrument wraps r so every call is observed under the provider label.
func Instrument(r Responder, provider string) *Instrumented {
	return &Instrumented{next: r, provider: provider}
}

// Respond implements Responder.
func (i *Instrumented) Respond(ctx context.Context, message string, maxOutputTokens int) (string, error) {
	start := time.Now()
	text, err := i.next.Respond(ctx, message, maxOutputTokens)
	metrics.ResponderDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ResponderErrors.WithLabelValues(i.provider).Inc()
	}
	return text, err
}

// Echo returns the message unchanged. It is meant for local development.
type Echo struct{}

// Respond implements Responder.
func (Echo) Respond(ctx context.Context, message string, maxOutputTokens int) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}
	return message, nil
}
