package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/talkgate/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the talkgate configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s is invalid: %v\n", configPath, err)
		return err
	}

	if _, err := cfg.Catalog(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Plan catalog is invalid: %v\n", err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Skipping unknown-key check: %v\n", err)
	}

	fmt.Fprintf(os.Stdout, "✅ %s is valid\n", configPath)

	if len(unknownKeys) > 0 {
		warn := color.New(color.FgRed, color.Bold)
		_, _ = warn.Fprintf(os.Stdout, "\n⚠️  %d key(s) are not talkgate settings and will be ignored:\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = warn.Fprintf(os.Stdout, "   - %s\n", key)
		}
	}

	if validateDump {
		fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("-", 72))
		fmt.Fprintln(os.Stdout, "Effective configuration (yellow = changed from default)")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 72))

		dumpConfig(cfg, getDefaultConfig(), unknownKeys)
	}

	return nil
}

// getDefaultConfig decodes a config holding only the defaults.
func getDefaultConfig() *config.Config {
	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// findUnknownKeys returns the keys in the file that carry no default.
func findUnknownKeys(path string) ([]string, error) {
	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil {
		return nil, err
	}

	known := knownKeys()

	var unknown []string
	for _, key := range file.AllKeys() {
		if known[key] || strings.HasPrefix(key, "plans.tiers") {
			continue
		}
		unknown = append(unknown, key)
	}
	sort.Strings(unknown)

	return unknown, nil
}

// knownKeys returns every key config.SetDefaults defines.
func knownKeys() map[string]bool {
	v := viper.New()
	config.SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// dumpEntry is one key shown by --dump alongside its default.
type dumpEntry struct {
	key        string
	value, def interface{}
}

// dumpSection groups entries under a config section header.
type dumpSection struct {
	name    string
	entries []dumpEntry
}

// configSections lists every dumped key. Secrets are redacted on both sides so
// only "set" versus "unset" shows up as a difference.
func configSections(cfg, def *config.Config) []dumpSection {
	tiers := func(c *config.Config) string {
		if len(c.Plans.Tiers) == 0 {
			return "(built-in catalog)"
		}
		return fmt.Sprintf("%d configured", len(c.Plans.Tiers))
	}

	return []dumpSection{
		{"server", []dumpEntry{
			{"bind_address", cfg.Server.BindAddress, def.Server.BindAddress},
			{"api_port", cfg.Server.APIPort, def.Server.APIPort},
			{"metrics_port", cfg.Server.MetricsPort, def.Server.MetricsPort},
			{"read_timeout", cfg.Server.ReadTimeout, def.Server.ReadTimeout},
			{"write_timeout", cfg.Server.WriteTimeout, def.Server.WriteTimeout},
		}},
		{"logging", []dumpEntry{
			{"level", cfg.Logging.Level, def.Logging.Level},
			{"format", cfg.Logging.Format, def.Logging.Format},
		}},
		{"auth", []dumpEntry{
			{"jwt_secret", redactSecret(cfg.Auth.JWTSecret), redactSecret(def.Auth.JWTSecret)},
			{"token_ttl", cfg.Auth.TokenTTL, def.Auth.TokenTTL},
		}},
		{"plans", []dumpEntry{
			{"default", cfg.Plans.Default, def.Plans.Default},
			{"header", cfg.Plans.Header, def.Plans.Header},
			{"trust_header", cfg.Plans.TrustHeader, def.Plans.TrustHeader},
			{"tiers", tiers(cfg), tiers(def)},
		}},
		{"usage", []dumpEntry{
			{"shards", cfg.Usage.Shards, def.Usage.Shards},
			{"sweep_time", cfg.Usage.SweepTime, def.Usage.SweepTime},
			{"sweep_enabled", cfg.Usage.SweepEnabled, def.Usage.SweepEnabled},
		}},
		{"responder", []dumpEntry{
			{"provider", cfg.Responder.Provider, def.Responder.Provider},
			{"model", cfg.Responder.Model, def.Responder.Model},
			{"api_key", redactSecret(cfg.Responder.APIKey), redactSecret(def.Responder.APIKey)},
			{"base_url", cfg.Responder.BaseURL, def.Responder.BaseURL},
			{"timeout", cfg.Responder.Timeout, def.Responder.Timeout},
			{"max_output_tokens", cfg.Responder.MaxOutputTokens, def.Responder.MaxOutputTokens},
			{"breaker_max_failures", cfg.Responder.BreakerMaxFailures, def.Responder.BreakerMaxFailures},
			{"breaker_timeout", cfg.Responder.BreakerTimeout, def.Responder.BreakerTimeout},
		}},
		{"storage", []dumpEntry{
			{"type", cfg.Storage.Type, def.Storage.Type},
			{"redis.host", cfg.Storage.Redis.Host, def.Storage.Redis.Host},
			{"redis.port", cfg.Storage.Redis.Port, def.Storage.Redis.Port},
			{"redis.password", redactSecret(cfg.Storage.Redis.Password), redactSecret(def.Storage.Redis.Password)},
			{"redis.db", cfg.Storage.Redis.DB, def.Storage.Redis.DB},
			{"redis.pool_size", cfg.Storage.Redis.PoolSize, def.Storage.Redis.PoolSize},
			{"redis.min_idle_conns", cfg.Storage.Redis.MinIdleConns, def.Storage.Redis.MinIdleConns},
			{"redis.dial_timeout", cfg.Storage.Redis.DialTimeout, def.Storage.Redis.DialTimeout},
			{"redis.read_timeout", cfg.Storage.Redis.ReadTimeout, def.Storage.Redis.ReadTimeout},
			{"redis.write_timeout", cfg.Storage.Redis.WriteTimeout, def.Storage.Redis.WriteTimeout},
		}},
		{"subscriptions", []dumpEntry{
			{"cache_size", cfg.Subscriptions.CacheSize, def.Subscriptions.CacheSize},
			{"cache_ttl", cfg.Subscriptions.CacheTTL, def.Subscriptions.CacheTTL},
		}},
		{"policy", []dumpEntry{
			{"policy_dir", cfg.Policy.PolicyDir, def.Policy.PolicyDir},
		}},
		{"rate_limit", []dumpEntry{
			{"requests", cfg.RateLimit.Requests, def.RateLimit.Requests},
			{"window", cfg.RateLimit.Window, def.RateLimit.Window},
		}},
	}
}

// dumpConfig prints every section, highlighting values that differ from the
// defaults, then any unknown keys.
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	changed := color.New(color.FgYellow, color.Bold)
	unchanged := color.New(color.FgGreen)
	header := color.New(color.FgCyan, color.Bold)

	for _, section := range configSections(cfg, defaultCfg) {
		_, _ = header.Printf("\n[%s]\n", section.name)
		for _, e := range section.entries {
			dumpField("  "+e.key, e.value, e.def, changed, unchanged)
		}
	}

	if len(unknownKeys) > 0 {
		warn := color.New(color.FgRed, color.Bold)
		_, _ = header.Println("\n[ignored keys]")
		for _, key := range unknownKeys {
			_, _ = warn.Printf("  %s  (not a talkgate setting)\n", key)
		}
	}

	fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("-", 72))
}

func dumpField(name string, value, defaultValue interface{}, changed, unchanged *color.Color) {
	if reflect.DeepEqual(value, defaultValue) {
		_, _ = unchanged.Printf("%s = %v\n", name, value)
		return
	}
	_, _ = changed.Printf("%s = %v  (default: %v)\n", name, value, defaultValue)
}

// redactSecret redacts a secret if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}
