package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vetra-ai/vetra/internal/auth"
	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/pipeline"
	"github.com/vetra-ai/vetra/internal/sharelink"
	"github.com/vetra-ai/vetra/internal/storage"
)

// Pipeline is the validation orchestration surface the handlers need.
// *pipeline.Orchestrator satisfies it; tests use a fake.
type Pipeline interface {
	Start(ctx context.Context, userID uuid.UUID, req model.StartRequest) (*model.StartResponse, error)
	Status(ctx context.Context, id uuid.UUID) (*model.StatusResponse, error)
	Inflight() int64
}

// ShareService is the share link surface the handlers need.
// *sharelink.Service satisfies it.
type ShareService interface {
	Generate(ctx context.Context, req model.GenerateLinkRequest, startupID, createdBy uuid.UUID) (*model.ShareLink, error)
	Resolve(ctx context.Context, token string) *model.ResolveResponse
	Revoke(ctx context.Context, linkID, callerStartupID uuid.UUID) error
	ListActive(ctx context.Context, rt model.ResourceType, resourceID uuid.UUID) ([]model.ShareLink, error)
}

// Store is the direct persistence surface the handlers need beyond the
// services. *storage.DB satisfies it.
type Store interface {
	GetUserByHandle(ctx context.Context, handle string) (model.User, error)
	GetReport(ctx context.Context, id uuid.UUID) (*model.Report, error)
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               Store
	jwtMgr              *auth.JWTManager
	pipe                Pipeline
	shares              ShareService
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store               Store
	JWTMgr              *auth.JWTManager
	Pipeline            Pipeline
	Shares              ShareService
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:               d.Store,
		jwtMgr:              d.JWTMgr,
		pipe:                d.Pipeline,
		shares:              d.Shares,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAuthToken handles POST /auth/token.
// Exchanges a founder handle plus API key for a JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Handle == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "handle and api_key are required")
		return
	}

	user, err := h.store.GetUserByHandle(r.Context(), req.Handle)
	if err != nil {
		// Burn the same hashing cost as a real verification so timing
		// does not reveal whether the handle exists.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, user.APIKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	h.logger.Info("token issued",
		"handle", user.Handle,
		"request_id", RequestIDFromContext(r.Context()))

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleStartValidation handles POST /v1/validations.
// Starts the analysis pipeline in the background and returns immediately.
func (h *Handlers) HandleStartValidation(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid token subject")
		return
	}

	var req model.StartRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	// Sessions belong to the caller's startup, never a startup named in
	// the request body.
	req.StartupID = claims.StartupID

	resp, err := h.pipe.Start(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.writeInternalError(w, r, "failed to start validation", err)
		return
	}

	status := http.StatusAccepted
	if resp.Deduped {
		status = http.StatusOK
	}
	writeJSON(w, r, status, resp)
}

// HandleValidationStatus handles GET /v1/validations/{session_id}.
func (h *Handlers) HandleValidationStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid session_id")
		return
	}

	resp, err := h.pipe.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
			return
		}
		h.writeInternalError(w, r, "failed to load session", err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleGetReport handles GET /v1/reports/{report_id}.
func (h *Handlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("report_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid report_id")
		return
	}

	report, err := h.store.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "report not found")
			return
		}
		h.writeInternalError(w, r, "failed to load report", err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleGenerateShareLink handles POST /v1/share-links.
func (h *Handlers) HandleGenerateShareLink(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid token subject")
		return
	}
	if claims.StartupID == nil {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "account has no startup")
		return
	}

	var req model.GenerateLinkRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	link, err := h.shares.Generate(r.Context(), req, *claims.StartupID, userID)
	if err != nil {
		switch {
		case errors.Is(err, sharelink.ErrInvalidRequest):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		case errors.Is(err, sharelink.ErrForbidden):
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "resource belongs to another startup")
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "resource not found")
		default:
			h.writeInternalError(w, r, "failed to generate share link", err)
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, link)
}

// HandleRevokeShareLink handles DELETE /v1/share-links/{link_id}.
func (h *Handlers) HandleRevokeShareLink(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.StartupID == nil {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "account has no startup")
		return
	}

	id, err := uuid.Parse(r.PathValue("link_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid link_id")
		return
	}

	if err := h.shares.Revoke(r.Context(), id, *claims.StartupID); err != nil {
		switch {
		case errors.Is(err, sharelink.ErrForbidden):
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "link belongs to another startup")
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "link not found")
		default:
			h.writeInternalError(w, r, "failed to revoke share link", err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListShareLinks handles GET /v1/share-links.
// Requires resource_type and resource_id query parameters.
func (h *Handlers) HandleListShareLinks(w http.ResponseWriter, r *http.Request) {
	rt := model.ResourceType(r.URL.Query().Get("resource_type"))
	if !model.ValidResourceType(rt) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid resource_type")
		return
	}
	resourceID, err := uuid.Parse(r.URL.Query().Get("resource_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid resource_id")
		return
	}

	links, err := h.shares.ListActive(r.Context(), rt, resourceID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list share links", err)
		return
	}
	if links == nil {
		links = []model.ShareLink{}
	}
	writeJSON(w, r, http.StatusOK, links)
}

// HandleResolveShared handles GET /v1/shared/{token}.
// Public endpoint: no auth, responses reveal nothing beyond the closed
// error code set. The body is the bare {data, error} resolve shape,
// not the authenticated envelope: anonymous viewers read
// resp.error.code directly.
func (h *Handlers) HandleResolveShared(w http.ResponseWriter, r *http.Request) {
	resp := h.shares.Resolve(r.Context(), r.PathValue("token"))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(shareStatusFor(resp))
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode resolve response", slog.String("error", err.Error()))
	}
}

// shareStatusFor maps a resolve envelope to an HTTP status.
func shareStatusFor(resp *model.ResolveResponse) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Code {
	case model.ShareErrExpired, model.ShareErrRevoked:
		return http.StatusGone
	case model.ShareErrInvalid, model.ShareErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Postgres  string `json:"postgres"`
	Pipelines int64  `json:"pipelines_inflight"`
	Uptime    int64  `json:"uptime_seconds"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   h.version,
		Postgres:  pgStatus,
		Pipelines: h.pipe.Inflight(),
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeInternalError logs the underlying error and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}
