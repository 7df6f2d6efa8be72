package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vetra-ai/vetra/internal/auth"
	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/ratelimit"
)

// Server is the Vetra HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Limiter fields are optional (nil = that surface is unlimited).
type ServerConfig struct {
	// Required dependencies.
	Store    Store
	JWTMgr   *auth.JWTManager
	Pipeline Pipeline
	Shares   ShareService
	Logger   *slog.Logger

	// Optional rate limiters per surface.
	StartLimiter  ratelimit.Limiter // POST /v1/validations, keyed by user.
	QueryLimiter  ratelimit.Limiter // Read endpoints, keyed by user.
	AuthLimiter   ratelimit.Limiter // POST /auth/token, keyed by IP.
	SharedLimiter ratelimit.Limiter // GET /v1/shared/{token}, keyed by IP.

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		JWTMgr:              cfg.JWTMgr,
		Pipeline:            cfg.Pipeline,
		Shares:              cfg.Shares,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	startRL := ratelimit.Middleware(cfg.StartLimiter, userKeyFunc, reqIDFunc)
	queryRL := ratelimit.Middleware(cfg.QueryLimiter, userKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(cfg.AuthLimiter, ratelimit.IPKeyFunc, reqIDFunc)
	sharedRL := ratelimit.Middleware(cfg.SharedLimiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Validation pipeline (founder+, start is the expensive surface).
	founder := requireRole(model.RoleFounder, model.RoleAdmin)
	mux.Handle("POST /v1/validations", startRL(founder(http.HandlerFunc(h.HandleStartValidation))))
	mux.Handle("GET /v1/validations/{session_id}", queryRL(founder(http.HandlerFunc(h.HandleValidationStatus))))
	mux.Handle("GET /v1/reports/{report_id}", queryRL(founder(http.HandlerFunc(h.HandleGetReport))))

	// Share link management (founder+).
	mux.Handle("POST /v1/share-links", queryRL(founder(http.HandlerFunc(h.HandleGenerateShareLink))))
	mux.Handle("DELETE /v1/share-links/{link_id}", queryRL(founder(http.HandlerFunc(h.HandleRevokeShareLink))))
	mux.Handle("GET /v1/share-links", queryRL(founder(http.HandlerFunc(h.HandleListShareLinks))))

	// Public share resolution (no auth, rate limited by IP).
	mux.Handle("GET /v1/shared/{token}", sharedRL(http.HandlerFunc(h.HandleResolveShared)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc extracts the founder id from the request context for rate
// limiting. Returns empty string for admins (exempt from rate limits).
func userKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role == model.RoleAdmin {
		return ""
	}
	return "user:" + claims.Subject
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
