package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// HTTP metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkgate_http_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talkgate_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Gate metrics
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkgate_gate_decisions_total",
			Help: "Quota gate outcomes by plan and status",
		},
		[]string{"plan", "status"},
	)

	FeatureDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkgate_feature_denials_total",
			Help: "Requests rejected by the feature policy",
		},
		[]string{"plan", "feature"},
	)

	// Usage metrics
	ConversationsEnded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talkgate_conversations_ended_total",
			Help: "Conversations closed and counted against a daily quota",
		},
	)

	SessionsReplaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talkgate_sessions_replaced_total",
			Help: "Active sessions discarded because a new conversation started",
		},
	)

	DailyResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talkgate_daily_resets_total",
			Help: "Usage records reset on day rollover",
		},
	)

	RecordsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talkgate_usage_records_swept_total",
			Help: "Stale usage records evicted by the sweeper",
		},
	)

	TrackedUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talkgate_tracked_users",
			Help: "Number of users with a usage record in memory",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talkgate_active_sessions",
			Help: "Number of open conversation sessions",
		},
	)

	// Responder metrics
	ResponderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talkgate_responder_duration_seconds",
			Help:    "Latency of the conversational responder",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	ResponderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkgate_responder_errors_total",
			Help: "Failed responder calls",
		},
		[]string{"provider"},
	)

	// Subscription directory metrics
	SubscriptionCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talkgate_subscription_cache_hits_total",
			Help: "Subscription directory cache hits",
		},
	)

	SubscriptionCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talkgate_subscription_cache_misses_total",
			Help: "Subscription directory cache misses",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		GateDecisions,
		FeatureDenials,
		ConversationsEnded,
		SessionsReplaced,
		DailyResets,
		RecordsSwept,
		TrackedUsers,
		ActiveSessions,
		ResponderDuration,
		ResponderErrors,
		SubscriptionCacheHits,
		SubscriptionCacheMisses,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
