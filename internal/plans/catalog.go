package plans

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultTierID is the free tier every unknown identifier falls back to.
const DefaultTierID = "FREE"

// ErrInvalidCatalog is returned when a tier list cannot form a catalog.
var ErrInvalidCatalog = errors.New("plans: invalid catalog")

// Catalog is a read-only registry of plan tiers keyed by identifier.
// It is populated once and never mutated, so it is safe for concurrent use.
type Catalog struct {
	tiers     map[string]Tier
	ordered   []Tier
	defaultID string
}

// NewCatalog builds a catalog from tiers. defaultID must name one of them.
func NewCatalog(tiers []Tier, defaultID string) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		tiers:     make(map[string]Tier, len(tiers)),
		ordered:   make([]Tier, 0, len(tiers)),
		defaultID: defaultID,
	}

	for _, t := range tiers {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: tier with empty id", ErrInvalidCatalog)
		}
		if _, dup := c.tiers[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %q", ErrInvalidCatalog, t.ID)
		}
		if t.DailyConversationLimit < 0 {
			return nil, fmt.Errorf("%w: tier %q has negative daily limit", ErrInvalidCatalog, t.ID)
		}
		if t.MaxSecondsPerConversation < 0 {
			return nil, fmt.Errorf("%w: tier %q has negative time budget", ErrInvalidCatalog, t.ID)
		}

		t = t.clone()
		c.tiers[t.ID] = t
		c.ordered = append(c.ordered, t)
	}

	if _, ok := c.tiers[defaultID]; !ok {
		return nil, fmt.Errorf("%w: default tier %q not defined", ErrInvalidCatalog, defaultID)
	}

	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.ordered[i].Priority < c.ordered[j].Priority
	})

	return c, nil
}

// DefaultCatalog returns the built-in tiers.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(BuiltinTiers(), DefaultTierID)
	if err != nil {
		panic(fmt.Sprintf("built-in plan catalog is invalid: %v", err))
	}
	return c
}

// BuiltinTiers returns the tier definitions used when none are configured.
func BuiltinTiers() []Tier {
	return []Tier{
		{
			ID:                        "FREE",
			Price:                     0,
			DailyConversationLimit:    40,
			MaxSecondsPerConversation: 30,
			Priority:                  1,
			InterruptionLimit:         5,
		},
		{
			ID:                        "PLAN_399",
			Price:                     399,
			DailyConversationLimit:    90,
			MaxSecondsPerConversation: 75,
			Priority:                  2,
			InterruptionLimit:         8,
		},
		{
			ID:                        "PLAN_599",
			Price:                     599,
			DailyConversationLimit:    120,
			MaxSecondsPerConversation: 150,
			Priority:                  3,
			InterruptionLimit:         10,
		},
		{
			ID:                        "PLAN_699",
			Price:                     699,
			DailyConversationLimit:    120,
			MaxSecondsPerConversation: 150,
			Priority:                  4,
			Features:                  []Feature{FeatureScreenExplain},
			InterruptionLimit:         999,
		},
	}
}

// Lookup returns the tier named id, or the default tier when id is empty or
// unknown. It never fails.
func (c *Catalog) Lookup(id string) Tier {
	if t, ok := c.tiers[id]; ok {
		return t.clone()
	}
	return c.Default()
}

// Has reports whether id names a tier in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.tiers[id]
	return ok
}

// Default returns the fallback tier.
func (c *Catalog) Default() Tier {
	return c.tiers[c.defaultID].clone()
}

// Tiers returns every tier ordered by priority.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.ordered))
	for i, t := range c.ordered {
		out[i] = t.clone()
	}
	return out
}
