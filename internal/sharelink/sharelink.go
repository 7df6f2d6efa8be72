// Package sharelink issues, validates and revokes the tokens that give
// anonymous viewers read access to a finished validation report.
package sharelink

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/storage"
)

// ErrForbidden is returned when the caller does not own the link.
var ErrForbidden = errors.New("sharelink: forbidden")

// ErrInvalidRequest marks caller-correctable generation failures.
var ErrInvalidRequest = errors.New("sharelink: invalid request")

const (
	tokenPrefix   = "vsl_"
	tokenBytes    = 32
	accessTimeout = 5 * time.Second
)

// Store is the persistence surface the service needs. *storage.DB
// satisfies it.
type Store interface {
	CreateShareLink(ctx context.Context, l *model.ShareLink) error
	// GetShareLinkByToken returns the link regardless of revocation or
	// expiry, so Resolve can classify precisely.
	GetShareLinkByToken(ctx context.Context, token string) (*model.ShareLink, error)
	GetShareLink(ctx context.Context, id uuid.UUID) (*model.ShareLink, error)
	// RevokeShareLink sets revoked_at once. Returns false when the link
	// was already revoked.
	RevokeShareLink(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListActiveShareLinks(ctx context.Context, rt model.ResourceType, resourceID uuid.UUID, now time.Time) ([]model.ShareLink, error)
	// RecordShareAccess bumps access_count and last_accessed_at.
	RecordShareAccess(ctx context.Context, id uuid.UUID, at time.Time) error

	GetReport(ctx context.Context, id uuid.UUID) (*model.Report, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

func New(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Drain waits for in-flight access recordings, or gives up when ctx
// expires. Called on shutdown; dropped recordings are acceptable.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generate issues a new link. The full record, token included, is
// returned to the caller exactly once; the token is never logged.
func (s *Service) Generate(ctx context.Context, req model.GenerateLinkRequest, startupID, createdBy uuid.UUID) (*model.ShareLink, error) {
	if !model.ValidResourceType(req.ResourceType) {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrInvalidRequest, req.ResourceType)
	}
	now := s.now()
	expiresAt, err := model.ExpiryTime(now, req.ExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if req.ResourceType == model.ResourceValidationReport {
		report, err := s.store.GetReport(ctx, req.ResourceID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: report %s does not exist", ErrInvalidRequest, req.ResourceID)
			}
			return nil, fmt.Errorf("sharelink: load report: %w", err)
		}
		if report.StartupID != nil && *report.StartupID != startupID {
			return nil, ErrForbidden
		}
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("sharelink: token: %w", err)
	}
	link := &model.ShareLink{
		ID:           uuid.New(),
		Token:        token,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		StartupID:    startupID,
		CreatedBy:    createdBy,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
	if err := s.store.CreateShareLink(ctx, link); err != nil {
		return nil, fmt.Errorf("sharelink: create: %w", err)
	}
	s.logger.Info("share link created",
		slog.String("link_id", link.ID.String()),
		slog.String("resource_type", string(link.ResourceType)),
		slog.String("resource_id", link.ResourceID.String()),
		slog.Time("expires_at", link.ExpiresAt))
	return link, nil
}

// Resolve validates a token for an anonymous reader. Classification is
// deliberately coarse: an attacker probing tokens learns nothing beyond
// the five public codes. Validation order matters, revoked and expired
// must stay distinguishable from never-existed.
func (s *Service) Resolve(ctx context.Context, token string) *model.ResolveResponse {
	fail := func(code model.ShareErrorCode, msg string) *model.ResolveResponse {
		return &model.ResolveResponse{Error: &model.ShareError{Code: code, Message: msg}}
	}

	if token == "" {
		return fail(model.ShareErrInvalid, "This link is not valid.")
	}
	link, err := s.store.GetShareLinkByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fail(model.ShareErrInvalid, "This link is not valid.")
		}
		s.logger.Error("resolve share link", slog.String("error", err.Error()))
		return fail(model.ShareErrUnknown, "Something went wrong. Try again later.")
	}
	if link.RevokedAt != nil {
		return fail(model.ShareErrRevoked, "This link has been revoked by its owner.")
	}
	if link.ExpiresAt.Before(s.now()) {
		return fail(model.ShareErrExpired, "This link has expired.")
	}
	if link.ResourceType != model.ResourceValidationReport {
		return fail(model.ShareErrInvalid, "This link is not valid.")
	}

	report, err := s.store.GetReport(ctx, link.ResourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fail(model.ShareErrNotFound, "The shared report no longer exists.")
		}
		s.logger.Error("load shared report",
			slog.String("link_id", link.ID.String()),
			slog.String("error", err.Error()))
		return fail(model.ShareErrUnknown, "Something went wrong. Try again later.")
	}

	s.recordAccess(link.ID)
	return &model.ResolveResponse{Data: report}
}

// recordAccess bumps the access counter in the background. It must
// never block or fail the read path; a dropped increment costs an audit
// count, not correctness.
func (s *Service) recordAccess(linkID uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), accessTimeout)
		defer cancel()
		if err := s.store.RecordShareAccess(ctx, linkID, s.now()); err != nil {
			s.logger.Warn("record share access",
				slog.String("link_id", linkID.String()),
				slog.String("error", err.Error()))
		}
	}()
}

// Revoke disables a link. Revoking an already revoked link is a no-op;
// the row survives so access history does.
func (s *Service) Revoke(ctx context.Context, linkID, callerStartupID uuid.UUID) error {
	link, err := s.store.GetShareLink(ctx, linkID)
	if err != nil {
		return fmt.Errorf("sharelink: link %s: %w", linkID, err)
	}
	if link.StartupID != callerStartupID {
		return ErrForbidden
	}
	if link.RevokedAt != nil {
		return nil
	}
	if _, err := s.store.RevokeShareLink(ctx, linkID, s.now()); err != nil {
		return fmt.Errorf("sharelink: revoke %s: %w", linkID, err)
	}
	s.logger.Info("share link revoked", slog.String("link_id", linkID.String()))
	return nil
}

// ListActive returns the non-revoked, non-expired links for a resource,
// newest first.
func (s *Service) ListActive(ctx context.Context, rt model.ResourceType, resourceID uuid.UUID) ([]model.ShareLink, error) {
	if !model.ValidResourceType(rt) {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrInvalidRequest, rt)
	}
	links, err := s.store.ListActiveShareLinks(ctx, rt, resourceID, s.now())
	if err != nil {
		return nil, fmt.Errorf("sharelink: list: %w", err)
	}
	return links, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
