// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/contact-ranker/internal/job"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/service"
	"github.com/contact-ranker/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// ScoringServiceInterface defines the interface for ranking and selection operations
type ScoringServiceInterface interface {
	ListVips(ctx context.Context, userID string, limit int) ([]service.RankedContact, error)
	SaveSelection(ctx context.Context, userID string, contactHashes []string) error
	GetSelection(ctx context.Context, userID string) ([]models.VipListEntry, error)
	AddManualContact(ctx context.Context, userID string, email string) (string, error)
}

// SchedulerInterface defines the interface for backfill scheduling operations
type SchedulerInterface interface {
	EnqueueBackfill(ctx context.Context, userID string, reason types.TriggerReason, force bool) (*job.EnqueueResult, error)
}

// JobStatusStoreInterface defines the job lookup interface for status reads
type JobStatusStoreInterface interface {
	GetLatestForUser(ctx context.Context, userID string) (*models.BackfillJob, error)
}

// ContactCounterInterface reports whether aggregated contacts exist for a user
type ContactCounterInterface interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

// HealthChecker reports reachability of a backing store
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	scoring    ScoringServiceInterface
	scheduler  SchedulerInterface
	jobs       JobStatusStoreInterface
	contacts   ContactCounterInterface
	db         HealthChecker
	queue      HealthChecker
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ReadRPS         int
	WriteRPS        int
	Burst           int

	// BackfillMaxRetries bounds the user-facing retry affordance on the
	// status endpoint; must match the scheduler's ceiling
	BackfillMaxRetries int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	scoring ScoringServiceInterface,
	scheduler SchedulerInterface,
	jobs JobStatusStoreInterface,
	contacts ContactCounterInterface,
	db HealthChecker,
	queue HealthChecker,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		scoring:   scoring,
		scheduler: scheduler,
		jobs:      jobs,
		contacts:  contacts,
		db:        db,
		queue:     queue,
		config:    config,
		logger:    logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.ReadRPS, s.config.WriteRPS, s.config.Burst)

	// Middleware order matters: logging outermost, rate limiting after CORS
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Onboarding endpoints
	api.HandleFunc("/onboarding/vips", s.handleListVips).Methods("GET")
	api.HandleFunc("/onboarding/vips/selection", s.handleSaveSelection).Methods("POST")
	api.HandleFunc("/onboarding/vips/selection", s.handleGetSelection).Methods("GET")
	api.HandleFunc("/onboarding/vips/manual", s.handleAddManualContact).Methods("POST")
	api.HandleFunc("/onboarding/vips/status", s.handleOnboardingStatus).Methods("GET")
	api.HandleFunc("/onboarding/vips/retry-backfill", s.handleRetryBackfill).Methods("POST")

	// Internal backfill trigger (called on OAuth connect)
	api.HandleFunc("/backfill", s.handleTriggerBackfill).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := map[string]string{"database": "ok", "queue": "ok"}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if s.queue != nil {
		if err := s.queue.Ping(ctx); err != nil {
			checks["queue"] = "unreachable"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "contact-ranker",
		"checks":  checks,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the configured router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// requireUserID extracts the authenticated user from the request. The identity
// layer upstream of this service sets the header; an absent header is treated
// as unauthenticated.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required", nil)
		return "", false
	}
	return userID, true
}
