package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.APIPort != 3000 {
		t.Errorf("APIPort = %d, want 3000", cfg.Server.APIPort)
	}
	if cfg.Plans.Header != "X-Mala-Plan" || !cfg.Plans.TrustHeader {
		t.Errorf("Plans = %+v", cfg.Plans)
	}
	if cfg.Usage.Shards != 64 || cfg.Usage.SweepTime != "00:05" {
		t.Errorf("Usage = %+v", cfg.Usage)
	}
	if cfg.Responder.MaxOutputTokens != 300 || cfg.Responder.Model != "gpt-4o-mini" {
		t.Errorf("Responder = %+v", cfg.Responder)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %s, want memory", cfg.Storage.Type)
	}

	cat, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if got := cat.Default().ID; got != "FREE" {
		t.Errorf("default tier = %s, want FREE", got)
	}
	if len(cat.Tiers()) != 4 {
		t.Errorf("built-in tiers = %d, want 4", len(cat.Tiers()))
	}
}

func TestLoad_CustomTiers(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: s3cret
plans:
  default: BASIC
  tiers:
    - id: BASIC
      convos_per_day: 3
      max_seconds_per_convo: 20
      priority: 1
    - id: PRO
      convos_per_day: 50
      max_seconds_per_convo: 600
      priority: 2
      features: [screen_explain]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cat, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	pro := cat.Lookup("PRO")
	if pro.DailyConversationLimit != 50 || pro.MaxSecondsPerConversation != 600 {
		t.Errorf("PRO = %+v", pro)
	}
	if !pro.CanUseFeature("screen_explain") {
		t.Error("PRO should unlock screen_explain")
	}
	if got := cat.Lookup("UNKNOWN").ID; got != "BASIC" {
		t.Errorf("unknown tier resolved to %s, want BASIC", got)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TALKGATE_AUTH_JWT_SECRET", "from-env")
	t.Setenv("TALKGATE_SERVER_API_PORT", "8081")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
	if cfg.Server.APIPort != 8081 {
		t.Errorf("APIPort = %d, want 8081", cfg.Server.APIPort)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing jwt secret", body: "server:\n  api_port: 3000\n"},
		{name: "bad port", body: "auth:\n  jwt_secret: x\nserver:\n  api_port: 70000\n"},
		{name: "unknown provider", body: "auth:\n  jwt_secret: x\nresponder:\n  provider: pigeon\n"},
		{name: "unknown storage", body: "auth:\n  jwt_secret: x\nstorage:\n  type: bolt\n"},
		{name: "bad sweep time", body: "auth:\n  jwt_secret: x\nusage:\n  sweep_time: midnight\n"},
		{name: "bad duration", body: "auth:\n  jwt_secret: x\nresponder:\n  timeout: forever\n"},
		{name: "default tier missing", body: "auth:\n  jwt_secret: x\nplans:\n  default: GOLD\n"},
		{name: "negative limit", body: "auth:\n  jwt_secret: x\nplans:\n  tiers:\n    - id: FREE\n      convos_per_day: -1\n"},
		{name: "missing policy dir", body: "auth:\n  jwt_secret: x\npolicy:\n  policy_dir: /nonexistent/talkgate\n"},
		{name: "malformed yaml", body: "auth: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}
