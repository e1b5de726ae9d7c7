package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/talkgate/internal/metrics"
	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/responder"
	"github.com/goodtune/talkgate/internal/usage"
	"github.com/rs/zerolog"
)

// DefaultMaxOutputTokens bounds responder output when none is configured.
const DefaultMaxOutputTokens = 300

// ErrResponderFailed wraps any error returned by the responder.
var ErrResponderFailed = errors.New("quota: responder failed")

// Status is the decision rendered for a turn.
type Status string

const (
	StatusAllowed        Status = "allowed"
	StatusDailyExhausted Status = "daily_exhausted"
	StatusTimeExhausted  Status = "time_exhausted"
)

// User-facing texts for the denied outcomes.
const (
	DailyExhaustedText = "That’s all for today. We’ll continue tomorrow."
	TimeExhaustedText  = "We’re out of time for this conversation."
	FallbackText       = "Sorry, I couldn’t understand that."
)

// PlanMeta is the plan information attached to every outcome.
type PlanMeta struct {
	Plan              string `json:"plan"`
	MaxSeconds        int    `json:"max_seconds"`
	DailyLimit        int    `json:"daily_limit"`
	ConversationsUsed int    `json:"conversations_used"`
}

// Outcome is the result of one conversational turn.
type Outcome struct {
	Status Status   `json:"status"`
	Text   string   `json:"text"`
	Meta   PlanMeta `json:"meta"`
}

// TurnRequest is a single message from an authenticated user.
type TurnRequest struct {
	UserID   string
	TierHint string
	Message  string
}

// Config holds gate configuration
type Config struct {
	MaxOutputTokens int
}

// Gate decides whether a turn may reach the responder and accounts for it.
type Gate struct {
	resolver        *plans.Resolver
	store           *usage.Store
	responder       responder.Responder
	maxOutputTokens int
	logger          zerolog.Logger
}

// NewGate creates a new quota gate
func NewGate(resolver *plans.Resolver, store *usage.Store, r responder.Responder, config Config, logger zerolog.Logger) *Gate {
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = DefaultMaxOutputTokens
	}

	return &Gate{
		resolver:        resolver,
		store:           store,
		responder:       r,
		maxOutputTokens: config.MaxOutputTokens,
		logger:          logger.With().Str("component", "quota-gate").Logger(),
	}
}

// Turn runs one conversational turn for req.UserID.
//
// A daily-exhausted turn never opens a session. Every turn that opens a
// session closes it before returning, so an attempted turn consumes exactly
// one conversation whether or not the responder succeeds. When the responder
// fails the returned error wraps ErrResponderFailed and the outcome is nil.
func (g *Gate) Turn(ctx context.Context, req TurnRequest) (*Outcome, error) {
	plan := g.resolver.Resolve(req.TierHint)

	// The limit check and the session start share one lock so concurrent
	// turns cannot both pass the check
	if _, reached := g.store.BeginConversation(req.UserID, plan.DailyConversationLimit); reached {
		g.logger.Info().
			Str("user_id", req.UserID).
			Str("plan", plan.ID).
			Int("daily_limit", plan.DailyConversationLimit).
			Msg("Daily conversation limit reached")
		return g.outcome(req.UserID, plan, StatusDailyExhausted, DailyExhaustedText), nil
	}

	if out, expired := g.EnforceTimeBudget(req.UserID, plan); expired {
		return out, nil
	}

	text, err := g.responder.Respond(ctx, req.Message, g.maxOutputTokens)
	g.store.EndConversation(req.UserID)

	if err != nil {
		g.logger.Error().
			Err(err).
			Str("user_id", req.UserID).
			Str("plan", plan.ID).
			Msg("Responder call failed")
		metrics.GateDecisions.WithLabelValues(plan.ID, "responder_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrResponderFailed, err)
	}

	if text == "" {
		text = FallbackText
	}

	return g.outcome(req.UserID, plan, StatusAllowed, text), nil
}

// EnforceTimeBudget closes the user's session and returns a time-exhausted
// outcome when the session has used up plan's time budget. It reports false
// and leaves the session alone while time remains.
func (g *Gate) EnforceTimeBudget(userID string, plan plans.Tier) (*Outcome, bool) {
	if g.store.RemainingSeconds(userID, plan.MaxSecondsPerConversation) > 0 {
		return nil, false
	}

	g.store.EndConversation(userID)

	g.logger.Info().
		Str("user_id", userID).
		Str("plan", plan.ID).
		Int("max_seconds", plan.MaxSecondsPerConversation).
		Msg("Conversation time budget exhausted")

	return g.outcome(userID, plan, StatusTimeExhausted, TimeExhaustedText), true
}

// Resolve returns the tier that applies to hint.
func (g *Gate) Resolve(hint string) plans.Tier {
	return g.resolver.Resolve(hint)
}

func (g *Gate) outcome(userID string, plan plans.Tier, status Status, text string) *Outcome {
	metrics.GateDecisions.WithLabelValues(plan.ID, string(status)).Inc()

	return &Outcome{
		Status: status,
		Text:   text,
		Meta: PlanMeta{
			Plan:              plan.ID,
			MaxSeconds:        plan.MaxSecondsPerConversation,
			DailyLimit:        plan.DailyConversationLimit,
			ConversationsUsed: g.store.GetOrResetDaily(userID).ConversationsUsedToday,
		},
	}
}
