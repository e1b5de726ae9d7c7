package plans

import (
	"errors"
	"testing"
)

func TestCatalog_Lookup(t *testing.T) {
	cat := DefaultCatalog()

	tests := []struct {
		name   string
		id     string
		wantID string
	}{
		{"known free", "FREE", "FREE"},
		{"known paid", "PLAN_599", "PLAN_599"},
		{"unknown falls back", "PLAN_9000", DefaultTierID},
		{"empty falls back", "", DefaultTierID},
		{"case sensitive", "plan_399", DefaultTierID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cat.Lookup(tt.id)
			if got.ID != tt.wantID {
				t.Errorf("Lookup(%q) = %s, want %s", tt.id, got.ID, tt.wantID)
			}
		})
	}
}

func TestCatalog_BuiltinValues(t *testing.T) {
	cat := DefaultCatalog()

	free := cat.Lookup("FREE")
	if free.DailyLimit() != 40 || free.MaxSeconds() != 30 || free.InterruptionLimit != 5 {
		t.Errorf("unexpected FREE tier: %+v", free)
	}

	top := cat.Lookup("PLAN_699")
	if !top.CanUseFeature(FeatureScreenExplain) {
		t.Error("PLAN_699 should unlock screen_explain")
	}
	if cat.Lookup("PLAN_599").CanUseFeature(FeatureScreenExplain) {
		t.Error("PLAN_599 should not unlock screen_explain")
	}
}

func TestCatalog_TiersOrderedByPriority(t *testing.T) {
	tiers := DefaultCatalog().Tiers()
	for i := 1; i < len(tiers); i++ {
		if tiers[i-1].Priority > tiers[i].Priority {
			t.Fatalf("tiers not ordered by priority: %v before %v", tiers[i-1].ID, tiers[i].ID)
		}
	}
}

func TestCatalog_LookupReturnsCopy(t *testing.T) {
	cat := DefaultCatalog()

	tier := cat.Lookup("PLAN_699")
	tier.Features[0] = "tampered"
	tier.DailyConversationLimit = 1

	again := cat.Lookup("PLAN_699")
	if again.Features[0] != FeatureScreenExplain || again.DailyConversationLimit != 120 {
		t.Errorf("catalog was mutated through a lookup result: %+v", again)
	}
}

func TestNewCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		tiers     []Tier
		defaultID string
	}{
		{"empty", nil, "FREE"},
		{"empty id", []Tier{{ID: ""}}, ""},
		{"duplicate", []Tier{{ID: "A"}, {ID: "A"}}, "A"},
		{"negative limit", []Tier{{ID: "A", DailyConversationLimit: -1}}, "A"},
		{"negative seconds", []Tier{{ID: "A", MaxSecondsPerConversation: -5}}, "A"},
		{"missing default", []Tier{{ID: "A"}}, "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.tiers, tt.defaultID)
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("NewCatalog() error = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	cat, err := NewCatalog([]Tier{
		{ID: "BASIC", DailyConversationLimit: 2, MaxSecondsPerConversation: 30, Priority: 1},
		{ID: "PRO", DailyConversationLimit: 10, MaxSecondsPerConversation: 120, Priority: 2},
	}, "BASIC")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	r := NewResolver(cat)

	tests := []struct {
		hint string
		want string
	}{
		{"PRO", "PRO"},
		{"BASIC", "BASIC"},
		{"", "BASIC"},
		{"ENTERPRISE", "BASIC"},
	}

	for _, tt := range tests {
		if got := r.Resolve(tt.hint); got.ID != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.hint, got.ID, tt.want)
		}
	}
}
