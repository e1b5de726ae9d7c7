package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/talkgate/internal/api"
	"github.com/goodtune/talkgate/internal/auth"
	"github.com/goodtune/talkgate/internal/config"
	"github.com/goodtune/talkgate/internal/metrics"
	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/policy"
	"github.com/goodtune/talkgate/internal/policy/opa"
	"github.com/goodtune/talkgate/internal/quota"
	"github.com/goodtune/talkgate/internal/responder"
	"github.com/goodtune/talkgate/internal/storage"
	"github.com/goodtune/talkgate/internal/storage/memory"
	"github.com/goodtune/talkgate/internal/storage/redis"
	"github.com/goodtune/talkgate/internal/subscriptions"
	"github.com/goodtune/talkgate/internal/systemd"
	"github.com/goodtune/talkgate/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start talkgate server",
	Long:  `Start the talkgate API server and metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting talkgate")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Subscription directory storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	// Plan catalog
	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("failed to build plan catalog: %w", err)
	}
	for _, t := range catalog.Tiers() {
		logger.Debug().
			Str("plan", t.ID).
			Int("convos_per_day", t.DailyConversationLimit).
			Int("max_seconds_per_convo", t.MaxSecondsPerConversation).
			Msg("Plan loaded")
	}
	logger.Info().Int("plans", len(catalog.Tiers())).Str("default", catalog.Default().ID).Msg("Plan catalog loaded")

	// Usage store and sweeper
	usageStore := usage.NewStore(usage.StoreConfig{Shards: cfg.Usage.Shards}, logger)

	var sweeper *usage.Sweeper
	if cfg.Usage.SweepEnabled {
		sweeper, err = usage.NewSweeper(usageStore, cfg.Usage.SweepTime, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize usage sweeper: %w", err)
		}
		sweeper.Start()
	}

	// Responder
	ctx := context.Background()
	upstream, err := responder.New(ctx, responder.Config{
		Provider:           cfg.Responder.Provider,
		Model:              cfg.Responder.Model,
		APIKey:             cfg.Responder.APIKey,
		BaseURL:            cfg.Responder.BaseURL,
		Timeout:            parseDuration(cfg.Responder.Timeout, 30*time.Second),
		BreakerMaxFailures: cfg.Responder.BreakerMaxFailures,
		BreakerTimeout:     parseDuration(cfg.Responder.BreakerTimeout, 30*time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize responder: %w", err)
	}

	logger.Info().
		Str("provider", cfg.Responder.Provider).
		Str("model", cfg.Responder.Model).
		Msg("Responder initialized")

	gate := quota.NewGate(
		plans.NewResolver(catalog),
		usageStore,
		responder.Instrument(upstream, cfg.Responder.Provider),
		quota.Config{MaxOutputTokens: cfg.Responder.MaxOutputTokens},
		logger,
	)

	// Auth
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, parseDuration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Subscription directory
	directory := subscriptions.NewDirectory(store.Subscriptions(), catalog, subscriptions.Config{
		CacheSize:   cfg.Subscriptions.CacheSize,
		CacheTTL:    parseDuration(cfg.Subscriptions.CacheTTL, time.Minute),
		TrustHeader: cfg.Plans.TrustHeader,
	}, logger)

	// Feature policy
	opaEngine, err := opa.NewEngine(cfg.Policy.PolicyDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OPA engine: %w", err)
	}
	featurePolicy := policy.NewFeaturePolicy(opaEngine, logger)

	// API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{
		ListenAddr:      apiAddr,
		ReadTimeout:     parseDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:    parseDuration(cfg.Server.WriteTimeout, 60*time.Second),
		PlanHeader:      cfg.Plans.Header,
		RateLimit:       cfg.RateLimit.Requests,
		RateLimitWindow: parseDuration(cfg.RateLimit.Window, time.Minute),
	}, api.Deps{
		Gate:     gate,
		Usage:    usageStore,
		Catalog:  catalog,
		Hints:    directory,
		Features: featurePolicy,
		Tokens:   tokens,
	}, logger)

	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	logger.Info().Msg("talkgate startup complete")
	logger.Info().Msgf("API: http://%s", apiAddr)
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	stopWatchdog := startWatchdog(logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, reloading policies...")
			_ = systemd.NotifyReloading()
			if err := featurePolicy.Reload(); err != nil {
				logger.Error().Err(err).Msg("Failed to reload policies")
			} else {
				logger.Info().Msg("Policies reloaded successfully")
			}
			_ = systemd.NotifyReady()
			continue
		}

		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	close(stopWatchdog)

	if sweeper != nil {
		sweeper.Stop()
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("talkgate stopped")

	return nil
}

// startWatchdog pings the systemd watchdog until the returned channel is closed
func startWatchdog(logger zerolog.Logger) chan struct{} {
	stop := make(chan struct{})

	interval := systemd.WatchdogInterval()
	if interval <= 0 {
		return stop
	}

	logger.Debug().Dur("interval", interval).Msg("systemd watchdog enabled")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := systemd.NotifyWatchdog(); err != nil {
					logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
				}
			}
		}
	}()

	return stop
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.Open(), nil
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
