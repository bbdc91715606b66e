package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/motify-engine/internal/challenge"
	"github.com/terra-clan/motify-engine/internal/config"
	"github.com/terra-clan/motify-engine/internal/events"
	"github.com/terra-clan/motify-engine/internal/metrics"
	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/internal/storage"
)

// OAuthBackend is the subset of the OAuth backend client used by the API
type OAuthBackend interface {
	Status(ctx context.Context, provider, wallet string) (*models.OAuthStatus, error)
	ConnectURL(ctx context.Context, provider string, req models.SignedOAuthRequest) (string, error)
	Disconnect(ctx context.Context, provider string, req models.SignedOAuthRequest) (*models.OAuthResult, error)
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	challenges     challenge.Service
	oauth          OAuthBackend
	hub            *events.Hub
	repo           storage.Repository
	metrics        *metrics.Metrics
	limiter        *RateLimiter
	authMiddleware *AuthMiddleware
	now            func() time.Time
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	rateCfg config.RateLimitConfig,
	challenges challenge.Service,
	backend OAuthBackend,
	hub *events.Hub,
	repo storage.Repository,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		config:         cfg,
		challenges:     challenges,
		oauth:          backend,
		hub:            hub,
		repo:           repo,
		metrics:        m,
		limiter:        NewRateLimiter(rateCfg.RPS, rateCfg.Burst),
		authMiddleware: NewAuthMiddleware(repo),
		now:            time.Now,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// RateLimiter returns the per-client rate limiter
func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	if s.config.Debug {
		r.Post("/debug/reset", s.handleDebugReset)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Use(s.authMiddleware.Authenticate)

		// Event streams are long-lived and stay outside the request timeout
		r.With(s.authMiddleware.RequirePermission("challenges:read")).Get("/challenges/{id}/events", s.handleChallengeEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/challenges", func(r chi.Router) {
				r.With(s.authMiddleware.RequirePermission("challenges:read")).Get("/", s.handleListChallenges)
				r.With(s.authMiddleware.RequirePermission("challenges:write")).Post("/", s.handleCreateChallenge)
				r.With(s.authMiddleware.RequirePermission("challenges:read")).Get("/chain/{chainId}", s.handleGetChallengeByChainID)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission("challenges:read")).Get("/", s.handleGetChallenge)
					r.With(s.authMiddleware.RequirePermission("challenges:read")).Get("/eligibility", s.handleEligibility)
					r.With(s.authMiddleware.RequirePermission("challenges:write")).Post("/join", s.handleJoinChallenge)
					r.With(s.authMiddleware.RequirePermission("challenges:read")).Get("/progress", s.handleProgress)
					r.With(s.authMiddleware.RequirePermission("challenges:finalize")).Post("/finalize", s.handleFinalizeChallenge)
				})
			})

			r.Route("/oauth/{provider}", func(r chi.Router) {
				r.With(s.authMiddleware.RequirePermission("oauth:read")).Get("/status/{wallet}", s.handleOAuthStatus)
				r.With(s.authMiddleware.RequirePermission("oauth:read")).Get("/message", s.handleOAuthMessage)
				r.With(s.authMiddleware.RequirePermission("oauth:write")).Post("/connect", s.handleOAuthConnect)
				r.With(s.authMiddleware.RequirePermission("oauth:write")).Post("/disconnect", s.handleOAuthDisconnect)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog and records request metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", duration.Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
			s.metrics.ObserveRequest(routePattern(r), r.Method, ww.Status(), duration.Seconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern returns the matched chi route pattern
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
