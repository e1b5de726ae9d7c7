package plans

// Feature names a capability a plan tier may unlock.
type Feature string

const (
	// FeatureScreenExplain lets the caller ask about what is on their screen.
	FeatureScreenExplain Feature = "screen_explain"
)

// Tier is an immutable plan tier definition.
type Tier struct {
	ID                        string    `json:"id" mapstructure:"id"`
	Price                     int       `json:"price" mapstructure:"price"`
	DailyConversationLimit    int       `json:"convos_per_day" mapstructure:"convos_per_day"`
	MaxSecondsPerConversation int       `json:"max_seconds_per_convo" mapstructure:"max_seconds_per_convo"`
	Priority                  int       `json:"priority" mapstructure:"priority"`
	Features                  []Feature `json:"features" mapstructure:"features"`
	InterruptionLimit         int       `json:"interruption_limit" mapstructure:"interruption_limit"`
}

// CanUseFeature reports whether the tier unlocks f.
func (t Tier) CanUseFeature(f Feature) bool {
	for _, have := range t.Features {
		if have == f {
			return true
		}
	}
	return false
}

// MaxSeconds returns the per-conversation time budget.
func (t Tier) MaxSeconds() int { return t.MaxSecondsPerConversation }

// DailyLimit returns the number of conversations allowed per day.
func (t Tier) DailyLimit() int { return t.DailyConversationLimit }

// FeatureStrings returns the feature set as plain strings, for policy input
// and JSON rendering.
func (t Tier) FeatureStrings() []string {
	out := make([]string, len(t.Features))
	for i, f := range t.Features {
		out[i] = string(f)
	}
	return out
}

// clone returns a copy that shares no slices with t.
func (t Tier) clone() Tier {
	c := t
	if t.Features != nil {
		c.Features = append([]Feature(nil), t.Features...)
	}
	return c
}
