// Package worker provides the HTTP service that fronts the taste trainer.
package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/internal/config"
	"github.com/thebtf/tastetrainer/internal/trainer"
	"github.com/thebtf/tastetrainer/internal/worker/sse"
	"github.com/thebtf/tastetrainer/pkg/models"
)

const (
	// DefaultHTTPTimeout bounds non-streaming requests. Swipes and resets can
	// wait on a deck fetch, so it sits above the default fetch timeout.
	DefaultHTTPTimeout = 120 * time.Second

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout = 10 * time.Second
)

// Trainer is the trainer surface the HTTP service depends on.
type Trainer interface {
	State() trainer.State
	Insights(positive bool, limit int) []models.TasteInsight
	TasteContext() models.TasteContext
	History(limit int) []models.SwipeEvent
	SubmitSwipe(ctx context.Context, action models.SwipeAction) (trainer.SwipeOutcome, error)
	UndoLastSwipe(ctx context.Context) (models.SwipeEvent, error)
	ResetAll(ctx context.Context) error
	RefreshAnalysis(ctx context.Context) error
	Subscribe(fn func(trainer.Event)) (unsubscribe func())
}

// Service is the HTTP worker service.
type Service struct {
	version     string
	cfg         config.ServerConfig
	trainer     Trainer
	broadcaster *sse.Broadcaster
	router      *chi.Mux
	server      *http.Server
	startTime   time.Time
	unsubscribe func()

	storageHealth func(context.Context) StorageHealth
	breakerState  func() string

	ready   atomic.Bool
	readyMu sync.RWMutex
	initErr error
}

// StorageHealth is the storage section of the /health payload.
type StorageHealth struct {
	Driver string `json:"driver"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// Storage health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Option configures a Service.
type Option func(*Service)

// WithStorageHealth adds a storage check to /health. An unhealthy store
// reports the whole service as degraded.
func WithStorageHealth(check func(context.Context) StorageHealth) Option {
	return func(s *Service) { s.storageHealth = check }
}

// WithBreakerState adds the analysis circuit breaker state to /health.
func WithBreakerState(state func() string) Option {
	return func(s *Service) { s.breakerState = state }
}

// NewService creates the service and registers its routes. Trainer events
// are forwarded to SSE clients until Shutdown.
func NewService(version string, cfg config.ServerConfig, t Trainer, opts ...Option) *Service {
	s := &Service{
		version:     version,
		cfg:         cfg,
		trainer:     t,
		broadcaster: sse.NewBroadcaster(),
		router:      chi.NewRouter(),
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = t.Subscribe(func(ev trainer.Event) {
		s.broadcaster.Broadcast(ev)
	})

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Broadcaster returns the SSE broadcaster.
func (s *Service) Broadcaster() *sse.Broadcaster {
	return s.broadcaster
}

// MarkReady flips the service into the ready state, or records why
// initialization failed.
func (s *Service) MarkReady(err error) {
	s.readyMu.Lock()
	s.initErr = err
	s.readyMu.Unlock()
	s.ready.Store(err == nil)
}

func (s *Service) getInitError() error {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.initErr
}

func (s *Service) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestID)
	s.router.Use(SecurityHeaders)
	s.router.Use(Metrics)
}

func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	// Streaming route stays outside the request timeout.
	s.router.Get("/api/events", s.broadcaster.HandleSSE)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(DefaultHTTPTimeout))
		r.Use(s.requireReady)

		r.Get("/api/state", s.handleState)
		r.Get("/api/insights", s.handleInsights)
		r.Get("/api/context", s.handleContext)
		r.Get("/api/history", s.handleHistory)

		r.Group(func(r chi.Router) {
			if s.cfg.RateLimit > 0 {
				r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
			}
			r.Use(RequireJSONContentType)
			r.Use(MaxBodySize(s.maxBodyBytes()))

			r.Post("/api/swipe", s.handleSwipe)
			r.Post("/api/undo", s.handleUndo)
			r.Post("/api/reset", s.handleReset)
			r.Post("/api/analysis/refresh", s.handleRefreshAnalysis)
		})
	})
}

func (s *Service) maxBodyBytes() int64 {
	if s.cfg.MaxBodyBytes > 0 {
		return s.cfg.MaxBodyBytes
	}
	return 1 << 20
}

// Serve runs the HTTP server on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", ln.Addr().String()).
			Str("version", s.version).
			Msg("Worker HTTP server started")
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Service) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Shutdown stops forwarding events, disconnects SSE clients and stops the
// HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.broadcaster.CloseAll()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
			return err
		}
	}

	log.Info().Msg("Worker service shutdown complete")
	return nil
}
