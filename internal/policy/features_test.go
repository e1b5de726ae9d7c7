package policy

import (
	"context"
	"testing"

	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/policy/opa"
	"github.com/rs/zerolog"
)

func TestAllowFeature_BuiltinTiers(t *testing.T) {
	engine, err := opa.NewEngine("", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	p := NewFeaturePolicy(engine, zerolog.Nop())
	cat := plans.DefaultCatalog()

	tests := []struct {
		plan string
		want bool
	}{
		{plan: "FREE", want: false},
		{plan: "PLAN_399", want: false},
		{plan: "PLAN_599", want: false},
		{plan: "PLAN_699", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			got, err := p.AllowFeature(context.Background(), cat.Lookup(tt.plan), plans.FeatureScreenExplain)
			if err != nil {
				t.Fatalf("AllowFeature() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AllowFeature(%s) = %v, want %v", tt.plan, got, tt.want)
			}
			if got != cat.Lookup(tt.plan).CanUseFeature(plans.FeatureScreenExplain) {
				t.Error("embedded policy disagrees with the tier guard")
			}
		})
	}
}
