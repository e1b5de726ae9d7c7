package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/quota"
	"github.com/goodtune/talkgate/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PlanHeader      string
	RateLimit       int
	RateLimitWindow time.Duration
}

// PlanHinter picks the tier hint for an authenticated user.
type PlanHinter interface {
	PlanHint(ctx context.Context, userID, headerHint string) string
}

// FeatureChecker decides whether a tier may use a feature.
type FeatureChecker interface {
	AllowFeature(ctx context.Context, tier plans.Tier, feature plans.Feature) (bool, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Gate     *quota.Gate
	Usage    *usage.Store
	Catalog  *plans.Catalog
	Hints    PlanHinter
	Features FeatureChecker
	Tokens   TokenVerifier
}

// Server represents the public HTTP API.
type Server struct {
	config      Config
	deps        Deps
	rateLimiter *RateLimiter
	router      *mux.Router
	server      *http.Server
	listener    net.Listener // Optional pre-created listener (for systemd socket activation)
	logger      zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.PlanHeader == "" {
		cfg.PlanHeader = "X-Mala-Plan"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		config:      cfg,
		deps:        deps,
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow),
		router:      mux.NewRouter(),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(MetricsMiddleware)

	// Public routes
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/v1/plans", s.handlePlans).Methods("GET")

	// Authenticated routes
	authRouter := s.router.PathPrefix("/v1").Subrouter()
	authRouter.Use(AuthMiddleware(s.deps.Tokens))
	authRouter.Use(RateLimitMiddleware(s.rateLimiter))

	authRouter.HandleFunc("/talk", s.handleTalk).Methods("POST")
	authRouter.HandleFunc("/usage", s.handleUsage).Methods("GET")
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")
	s.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}
