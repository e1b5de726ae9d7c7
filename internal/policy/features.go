package policy

import (
	"context"

	"github.com/goodtune/talkgate/internal/metrics"
	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/policy/opa"
	"github.com/rs/zerolog"
)

// FeaturePolicy decides whether a plan tier may use a feature.
type FeaturePolicy struct {
	engine *opa.Engine
	logger zerolog.Logger
}

// NewFeaturePolicy creates a feature policy backed by engine.
func NewFeaturePolicy(engine *opa.Engine, logger zerolog.Logger) *FeaturePolicy {
	return &FeaturePolicy{
		engine: engine,
		logger: logger.With().Str("component", "policy").Logger(),
	}
}

// AllowFeature reports whether tier may use feature.
func (p *FeaturePolicy) AllowFeature(ctx context.Context, tier plans.Tier, feature plans.Feature) (bool, error) {
	allowed, err := p.engine.EvaluateFeature(ctx, buildFeatureFacts(tier, feature))
	if err != nil {
		p.logger.Error().Err(err).Str("plan", tier.ID).Str("feature", string(feature)).Msg("Feature policy evaluation failed")
		return false, err
	}

	if !allowed {
		metrics.FeatureDenials.WithLabelValues(tier.ID, string(feature)).Inc()
		p.logger.Debug().Str("plan", tier.ID).Str("feature", string(feature)).Msg("Feature denied")
	}

	return allowed, nil
}

// Reload reloads the underlying policies.
func (p *FeaturePolicy) Reload() error {
	return p.engine.Reload()
}

func buildFeatureFacts(tier plans.Tier, feature plans.Feature) map[string]interface{} {
	features := make([]interface{}, len(tier.Features))
	for i, f := range tier.Features {
		features[i] = string(f)
	}

	return map[string]interface{}{
		"plan": map[string]interface{}{
			"id":                 tier.ID,
			"priority":           tier.Priority,
			"daily_limit":        tier.DailyConversationLimit,
			"max_seconds":        tier.MaxSecondsPerConversation,
			"interruption_limit": tier.InterruptionLimit,
			"features":           features,
		},
		"feature": string(feature),
	}
}
