package sharelink

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	links   map[uuid.UUID]*model.ShareLink
	reports map[uuid.UUID]*model.Report
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		links:   make(map[uuid.UUID]*model.ShareLink),
		reports: make(map[uuid.UUID]*model.Report),
	}
}

func (f *fakeStore) CreateShareLink(_ context.Context, l *model.ShareLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.links[l.ID] = &cp
	return nil
}

func (f *fakeStore) GetShareLinkByToken(_ context.Context, token string) (*model.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetShareLink(_ context.Context, id uuid.UUID) (*model.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) RevokeShareLink(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if l.RevokedAt != nil {
		return false, nil
	}
	l.RevokedAt = &at
	return true, nil
}

func (f *fakeStore) ListActiveShareLinks(_ context.Context, rt model.ResourceType, resourceID uuid.UUID, now time.Time) ([]model.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ShareLink
	for _, l := range f.links {
		if l.ResourceType == rt && l.ResourceID == resourceID && l.RevokedAt == nil && l.ExpiresAt.After(now) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) RecordShareAccess(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return storage.ErrNotFound
	}
	l.AccessCount++
	l.LastAccessedAt = &at
	return nil
}

func (f *fakeStore) GetReport(_ context.Context, id uuid.UUID) (*model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func newTestService(store Store) *Service {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedReport(f *fakeStore, startupID uuid.UUID) *model.Report {
	r := &model.Report{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		StartupID: &startupID,
		Score:     82,
		Verdict:   model.VerdictGo,
		Summary:   "Strong problem.",
	}
	f.reports[r.ID] = r
	return r
}

func drain(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))
}

func TestGenerateThenResolve(t *testing.T) {
	store := newFakeStore()
	startupID, ownerID := uuid.New(), uuid.New()
	report := seedReport(store, startupID)
	svc := newTestService(store)

	link, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
		ResourceType: model.ResourceValidationReport,
		ResourceID:   report.ID,
		ExpiresIn:    model.ExpiryWeek,
	}, startupID, ownerID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.Token, "vsl_"))
	assert.Greater(t, len(link.Token), 40)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), link.ExpiresAt, time.Minute)

	resp := svc.Resolve(context.Background(), link.Token)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Data)
	assert.Equal(t, report.ID, resp.Data.ID)

	// Access counting is async but must land.
	drain(t, svc)
	stored, err := store.GetShareLink(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AccessCount)
	assert.NotNil(t, stored.LastAccessedAt)
}

func TestGenerateValidation(t *testing.T) {
	store := newFakeStore()
	startupID := uuid.New()
	report := seedReport(store, startupID)
	svc := newTestService(store)

	t.Run("unknown resource type", func(t *testing.T) {
		_, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
			ResourceType: "diary_entry",
			ResourceID:   report.ID,
			ExpiresIn:    model.ExpiryDay,
		}, startupID, uuid.New())
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("invalid expiry", func(t *testing.T) {
		_, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
			ResourceType: model.ResourceValidationReport,
			ResourceID:   report.ID,
			ExpiresIn:    13,
		}, startupID, uuid.New())
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("missing report", func(t *testing.T) {
		_, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
			ResourceType: model.ResourceValidationReport,
			ResourceID:   uuid.New(),
			ExpiresIn:    model.ExpiryDay,
		}, startupID, uuid.New())
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("foreign report", func(t *testing.T) {
		_, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
			ResourceType: model.ResourceValidationReport,
			ResourceID:   report.ID,
			ExpiresIn:    model.ExpiryDay,
		}, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("forever expiry is far future", func(t *testing.T) {
		link, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
			ResourceType: model.ResourceValidationReport,
			ResourceID:   report.ID,
			ExpiresIn:    model.ExpiryForever,
		}, startupID, uuid.New())
		require.NoError(t, err)
		assert.True(t, link.ExpiresAt.After(time.Now().AddDate(99, 0, 0)))
	})
}

func TestResolveClassification(t *testing.T) {
	store := newFakeStore()
	startupID := uuid.New()
	report := seedReport(store, startupID)
	svc := newTestService(store)

	mustLink := func(t *testing.T, expiresIn int) *model.ShareLink {
		t.Helper()
		link, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
			ResourceType: model.ResourceValidationReport,
			ResourceID:   report.ID,
			ExpiresIn:    expiresIn,
		}, startupID, uuid.New())
		require.NoError(t, err)
		return link
	}

	t.Run("unknown token is invalid, twice", func(t *testing.T) {
		for range 2 {
			resp := svc.Resolve(context.Background(), "vsl_does-not-exist")
			require.NotNil(t, resp.Error)
			assert.Equal(t, model.ShareErrInvalid, resp.Error.Code)
			assert.Nil(t, resp.Data)
		}
	})

	t.Run("revoked wins over expired", func(t *testing.T) {
		link := mustLink(t, model.ExpiryDay)
		require.NoError(t, svc.Revoke(context.Background(), link.ID, startupID))
		// Push the link past expiry as well.
		store.mu.Lock()
		store.links[link.ID].ExpiresAt = time.Now().Add(-time.Hour)
		store.mu.Unlock()

		for range 2 {
			resp := svc.Resolve(context.Background(), link.Token)
			require.NotNil(t, resp.Error)
			assert.Equal(t, model.ShareErrRevoked, resp.Error.Code)
		}
	})

	t.Run("expired", func(t *testing.T) {
		link := mustLink(t, model.ExpiryDay)
		store.mu.Lock()
		store.links[link.ID].ExpiresAt = time.Now().Add(-time.Minute)
		store.mu.Unlock()

		for range 2 {
			resp := svc.Resolve(context.Background(), link.Token)
			require.NotNil(t, resp.Error)
			assert.Equal(t, model.ShareErrExpired, resp.Error.Code)
		}
	})

	t.Run("vanished report is not_found", func(t *testing.T) {
		orphan := seedReport(store, startupID)
		link := mustLink(t, model.ExpiryDay)
		store.mu.Lock()
		store.links[link.ID].ResourceID = orphan.ID
		delete(store.reports, orphan.ID)
		store.mu.Unlock()

		resp := svc.Resolve(context.Background(), link.Token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, model.ShareErrNotFound, resp.Error.Code)
	})

	t.Run("failed resolve does not count access", func(t *testing.T) {
		link := mustLink(t, model.ExpiryDay)
		store.mu.Lock()
		store.links[link.ID].ExpiresAt = time.Now().Add(-time.Minute)
		store.mu.Unlock()

		svc.Resolve(context.Background(), link.Token)
		drain(t, svc)
		stored, err := store.GetShareLink(context.Background(), link.ID)
		require.NoError(t, err)
		assert.Zero(t, stored.AccessCount)
	})
}

func TestRevoke(t *testing.T) {
	store := newFakeStore()
	startupID := uuid.New()
	report := seedReport(store, startupID)
	svc := newTestService(store)

	link, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
		ResourceType: model.ResourceValidationReport,
		ResourceID:   report.ID,
		ExpiresIn:    model.ExpiryMonth,
	}, startupID, uuid.New())
	require.NoError(t, err)

	t.Run("owner revokes once, then no-op", func(t *testing.T) {
		require.NoError(t, svc.Revoke(context.Background(), link.ID, startupID))
		stored, err := store.GetShareLink(context.Background(), link.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.RevokedAt)
		firstRevokedAt := *stored.RevokedAt

		require.NoError(t, svc.Revoke(context.Background(), link.ID, startupID))
		stored, err = store.GetShareLink(context.Background(), link.ID)
		require.NoError(t, err)
		assert.Equal(t, firstRevokedAt, *stored.RevokedAt)
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		assert.ErrorIs(t, svc.Revoke(context.Background(), link.ID, uuid.New()), ErrForbidden)
	})

	t.Run("unknown link", func(t *testing.T) {
		assert.ErrorIs(t, svc.Revoke(context.Background(), uuid.New(), startupID), storage.ErrNotFound)
	})
}

func TestListActive(t *testing.T) {
	store := newFakeStore()
	startupID := uuid.New()
	report := seedReport(store, startupID)
	svc := newTestService(store)

	gen := func(t *testing.T, createdAt time.Time) *model.ShareLink {
		t.Helper()
		link, err := svc.Generate(context.Background(), model.GenerateLinkRequest{
			ResourceType: model.ResourceValidationReport,
			ResourceID:   report.ID,
			ExpiresIn:    model.ExpiryMonth,
		}, startupID, uuid.New())
		require.NoError(t, err)
		store.mu.Lock()
		store.links[link.ID].CreatedAt = createdAt
		store.mu.Unlock()
		return link
	}

	now := time.Now()
	older := gen(t, now.Add(-2*time.Hour))
	newer := gen(t, now.Add(-time.Hour))
	revoked := gen(t, now.Add(-30*time.Minute))
	require.NoError(t, svc.Revoke(context.Background(), revoked.ID, startupID))
	expired := gen(t, now.Add(-10*time.Minute))
	store.mu.Lock()
	store.links[expired.ID].ExpiresAt = now.Add(-time.Minute)
	store.mu.Unlock()

	links, err := svc.ListActive(context.Background(), model.ResourceValidationReport, report.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, newer.ID, links[0].ID)
	assert.Equal(t, older.ID, links[1].ID)
}
