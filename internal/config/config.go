package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/goodtune/talkgate/internal/plans"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Plans         PlansConfig         `mapstructure:"plans"`
	Usage         UsageConfig         `mapstructure:"usage"`
	Responder     ResponderConfig     `mapstructure:"responder"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address"`
	APIPort      int    `mapstructure:"api_port"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig defines access token settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	TokenTTL  string `mapstructure:"token_ttl"`
}

// PlansConfig defines the plan catalog and how requests pick a tier
type PlansConfig struct {
	Default     string       `mapstructure:"default"`
	Header      string       `mapstructure:"header"`
	TrustHeader bool         `mapstructure:"trust_header"`
	Tiers       []plans.Tier `mapstructure:"tiers"`
}

// UsageConfig defines usage tracking settings
type UsageConfig struct {
	Shards       int    `mapstructure:"shards"`
	SweepTime    string `mapstructure:"sweep_time"`
	SweepEnabled bool   `mapstructure:"sweep_enabled"`
}

// ResponderConfig defines the upstream conversational responder
type ResponderConfig struct {
	Provider           string `mapstructure:"provider"` // "openai", "gemini" or "echo"
	Model              string `mapstructure:"model"`
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	Timeout            string `mapstructure:"timeout"`
	MaxOutputTokens    int    `mapstructure:"max_output_tokens"`
	BreakerMaxFailures uint32 `mapstructure:"breaker_max_failures"`
	BreakerTimeout     string `mapstructure:"breaker_timeout"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "memory" or "redis"
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// SubscriptionsConfig defines the subscription directory cache
type SubscriptionsConfig struct {
	CacheSize int    `mapstructure:"cache_size"`
	CacheTTL  string `mapstructure:"cache_ttl"`
}

// PolicyConfig defines the feature policy source
type PolicyConfig struct {
	PolicyDir string `mapstructure:"policy_dir"` // empty uses the embedded policy
}

// RateLimitConfig defines per-user API rate limiting
type RateLimitConfig struct {
	Requests int    `mapstructure:"requests"`
	Window   string `mapstructure:"window"`
}

// Load loads configuration from file and environment variables.
// A missing file is not an error; defaults and environment are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TALKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by deployments of the service
	_ = v.BindEnv("auth.jwt_secret", "TALKGATE_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("responder.api_key", "TALKGATE_RESPONDER_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("server.api_port", "TALKGATE_SERVER_API_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 3000)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "168h")

	// Plan defaults
	v.SetDefault("plans.default", plans.DefaultTierID)
	v.SetDefault("plans.header", "X-Mala-Plan")
	v.SetDefault("plans.trust_header", true)
	v.SetDefault("plans.tiers", []plans.Tier{})

	// Usage defaults
	v.SetDefault("usage.shards", 64)
	v.SetDefault("usage.sweep_time", "00:05")
	v.SetDefault("usage.sweep_enabled", true)

	// Responder defaults
	v.SetDefault("responder.provider", "openai")
	v.SetDefault("responder.model", "gpt-4o-mini")
	v.SetDefault("responder.api_key", "")
	v.SetDefault("responder.base_url", "")
	v.SetDefault("responder.timeout", "30s")
	v.SetDefault("responder.max_output_tokens", 300)
	v.SetDefault("responder.breaker_max_failures", 5)
	v.SetDefault("responder.breaker_timeout", "30s")

	// Storage defaults
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 5)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Subscription directory defaults
	v.SetDefault("subscriptions.cache_size", 10000)
	v.SetDefault("subscriptions.cache_ttl", "1m")

	// Policy defaults
	v.SetDefault("policy.policy_dir", "")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", "1m")
}

// Catalog builds the plan catalog. With no configured tiers the built-in
// catalog is used.
func (c *Config) Catalog() (*plans.Catalog, error) {
	tiers := c.Plans.Tiers
	if len(tiers) == 0 {
		tiers = plans.BuiltinTiers()
	}
	return plans.NewCatalog(tiers, c.Plans.Default)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if cfg.Plans.Default == "" {
		cfg.Plans.Default = plans.DefaultTierID
	}
	if _, err := cfg.Catalog(); err != nil {
		return err
	}

	if cfg.Usage.Shards < 0 {
		return fmt.Errorf("usage.shards must not be negative: %d", cfg.Usage.Shards)
	}
	if _, err := time.Parse("15:04", cfg.Usage.SweepTime); err != nil {
		return fmt.Errorf("invalid usage.sweep_time %q (expected HH:MM)", cfg.Usage.SweepTime)
	}

	switch cfg.Responder.Provider {
	case "openai", "gemini", "echo":
	default:
		return fmt.Errorf("unknown responder provider: %s", cfg.Responder.Provider)
	}
	if cfg.Responder.MaxOutputTokens <= 0 {
		return fmt.Errorf("responder.max_output_tokens must be positive")
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.Type != "memory" && cfg.Storage.Type != "redis" {
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	if cfg.RateLimit.Requests < 0 {
		return fmt.Errorf("rate_limit.requests must not be negative")
	}

	durations := map[string]string{
		"server.read_timeout":        cfg.Server.ReadTimeout,
		"server.write_timeout":       cfg.Server.WriteTimeout,
		"auth.token_ttl":             cfg.Auth.TokenTTL,
		"responder.timeout":          cfg.Responder.Timeout,
		"responder.breaker_timeout":  cfg.Responder.BreakerTimeout,
		"subscriptions.cache_ttl":    cfg.Subscriptions.CacheTTL,
		"rate_limit.window":          cfg.RateLimit.Window,
		"storage.redis.dial_timeout": cfg.Storage.Redis.DialTimeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	}

	if cfg.Policy.PolicyDir != "" {
		if info, err := os.Stat(cfg.Policy.PolicyDir); err != nil || !info.IsDir() {
			return fmt.Errorf("policy.policy_dir %q is not a directory", cfg.Policy.PolicyDir)
		}
	}

	return nil
}
