package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetra-ai/vetra/internal/llm"
	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/playbook"
	"github.com/vetra-ai/vetra/internal/storage"
)

// fakeStore is an in-memory Store with the same compare-and-set
// semantics as the Postgres layer.
type dedupeKey struct {
	user uuid.UUID
	hash string
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session
	byHash   map[dedupeKey]uuid.UUID
	results  map[uuid.UUID][]model.AgentResult
	reports  map[uuid.UUID]*model.Report
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uuid.UUID]*model.Session),
		byHash:   make(map[dedupeKey]uuid.UUID),
		results:  make(map[uuid.UUID][]model.AgentResult),
		reports:  make(map[uuid.UUID]*model.Report),
	}
}

func (f *fakeStore) CreateSession(_ context.Context, s *model.Session) (*model.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Dedupe is per (user, hash) and ignores failed sessions, matching
	// the partial unique index.
	key := dedupeKey{user: s.UserID, hash: s.InputHash}
	if id, ok := f.byHash[key]; ok {
		if live := f.sessions[id]; live.Status != model.SessionFailed {
			cp := *live
			return &cp, true, nil
		}
	}
	cp := *s
	cp.CreatedAt = time.Now()
	f.sessions[s.ID] = &cp
	f.byHash[key] = s.ID
	out := cp
	return &out, false, nil
}

func (f *fakeStore) GetSession(_ context.Context, id uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) TransitionSession(_ context.Context, id uuid.UUID, from, to model.SessionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (f *fakeStore) FailSession(_ context.Context, id uuid.UUID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if s.Status.Terminal() {
		return nil
	}
	s.Status = model.SessionFailed
	s.ErrorMessage = &msg
	return nil
}

func (f *fakeStore) CompleteSession(_ context.Context, id, reportID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if s.Status != model.SessionComposing {
		return false, nil
	}
	s.Status = model.SessionDone
	s.ReportID = &reportID
	return true, nil
}

func (f *fakeStore) CompleteAgentResult(_ context.Context, r *model.AgentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[r.SessionID] = append(f.results[r.SessionID], *r)
	return nil
}

func (f *fakeStore) GetAgentResults(_ context.Context, sessionID uuid.UUID) ([]model.AgentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AgentResult, len(f.results[sessionID]))
	copy(out, f.results[sessionID])
	return out, nil
}

func (f *fakeStore) CreateReport(_ context.Context, r *model.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.reports[r.ID] = &cp
	return nil
}

// fakeGen lets a test vary the response per request.
type fakeGen struct {
	fn func(req llm.Request) (json.RawMessage, error)
}

func (g *fakeGen) Generate(_ context.Context, req llm.Request) (json.RawMessage, error) {
	return g.fn(req)
}

func composerJSON(t *testing.T) json.RawMessage {
	t.Helper()
	sections := make([]model.ReportSection, 0, model.ReportSectionCount)
	for i := 1; i <= model.ReportSectionCount; i++ {
		sections = append(sections, model.ReportSection{
			Number:  i,
			Title:   model.SectionTitles[i],
			Content: fmt.Sprintf("Body of section %d.", i),
		})
	}
	raw, err := json.Marshal(composerOutput{
		Summary:     "Strong problem, crowded market.",
		Sections:    sections,
		KeyFindings: []string{"finding one", "finding two", "finding three"},
	})
	require.NoError(t, err)
	return raw
}

const scoringJSON = `{"overall_score": 82, "dimensions": {"problem_clarity": 85, "timing": 70}, "rationale": "solid"}`

func happyGen(t *testing.T) *fakeGen {
	composer := composerJSON(t)
	return &fakeGen{fn: func(req llm.Request) (json.RawMessage, error) {
		switch {
		case strings.Contains(req.System, "scoring agent"):
			return json.RawMessage(scoringJSON), nil
		case strings.Contains(req.System, "composer agent"):
			return composer, nil
		default:
			return json.RawMessage(`{"company_name": "Fluxo"}`), nil
		}
	}}
}

func newTestOrchestrator(store Store, gen llm.Generator) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, gen, playbook.Builtin, logger, Options{Deadline: 5 * time.Second})
}

const testInput = "A SaaS platform helping independent restaurants cut food waste with demand forecasting."

func startAndWait(t *testing.T, o *Orchestrator, userID uuid.UUID, req model.StartRequest) *model.StartResponse {
	t.Helper()
	resp, err := o.Start(context.Background(), userID, req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	return resp
}

func TestStartRunsPipelineToDone(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, happyGen(t))

	resp := startAndWait(t, o, uuid.New(), model.StartRequest{
		InputText: testInput,
		InterviewContext: &model.InterviewContext{
			Extracted: map[string]string{"company_name": "Fluxo"},
		},
	})
	assert.Equal(t, model.SessionRunning, resp.Status)
	assert.False(t, resp.Deduped)

	status, err := o.Status(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionDone, status.Status)
	require.NotNil(t, status.ReportID)
	assert.Nil(t, status.Error)

	report := store.reports[*status.ReportID]
	require.NotNil(t, report)
	assert.Equal(t, 82, report.Score)
	assert.Equal(t, model.VerdictGo, report.Verdict)
	assert.Len(t, report.Sections, model.ReportSectionCount)
	assert.Equal(t, "Executive Summary", report.Sections[0].Title)
	assert.NotEmpty(t, report.KeyFindings)

	// All five agents recorded terminal results before composition.
	results, err := store.GetAgentResults(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Len(t, results, len(model.AnalysisAgents))
}

func TestStartRejectsShortInput(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, happyGen(t))

	_, err := o.Start(context.Background(), uuid.New(), model.StartRequest{InputText: "tiny"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, store.sessions, "no session row on rejected input")
}

func TestStartStripsMarkupBeforeBounds(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, happyGen(t))

	// Plenty of markup, fewer than ten characters of substance.
	_, err := o.Start(context.Background(), uuid.New(), model.StartRequest{
		InputText: "<div><b>**# hi ##**</b></div>",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartDeduplicatesIdenticalInput(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, happyGen(t))

	userID := uuid.New()
	ic := &model.InterviewContext{Extracted: map[string]string{"stage": "pre-seed"}}
	first := startAndWait(t, o, userID, model.StartRequest{InputText: testInput, InterviewContext: ic})

	second, err := o.Start(context.Background(), userID, model.StartRequest{InputText: testInput, InterviewContext: ic})
	require.NoError(t, err)
	assert.True(t, second.Deduped)
	assert.Equal(t, first.SessionID, second.SessionID)

	// Different interview context is a different logical start.
	third, err := o.Start(context.Background(), userID, model.StartRequest{InputText: testInput})
	require.NoError(t, err)
	assert.False(t, third.Deduped)
	assert.NotEqual(t, first.SessionID, third.SessionID)

	// Dedupe is scoped per user: the same idea from someone else is
	// a fresh session, never a pointer into another founder's work.
	other, err := o.Start(context.Background(), uuid.New(), model.StartRequest{InputText: testInput, InterviewContext: ic})
	require.NoError(t, err)
	assert.False(t, other.Deduped)
	assert.NotEqual(t, first.SessionID, other.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
}

func TestRestartAfterFailureStartsFreshSession(t *testing.T) {
	store := newFakeStore()
	happy := happyGen(t)
	var mu sync.Mutex
	providerDown := true
	gen := &fakeGen{fn: func(req llm.Request) (json.RawMessage, error) {
		mu.Lock()
		down := providerDown
		mu.Unlock()
		if down {
			return nil, errors.New("provider unavailable")
		}
		return happy.fn(req)
	}}
	o := newTestOrchestrator(store, gen)

	userID := uuid.New()
	first := startAndWait(t, o, userID, model.StartRequest{InputText: testInput})

	status, err := o.Status(context.Background(), first.SessionID)
	require.NoError(t, err)
	require.Equal(t, model.SessionFailed, status.Status)

	// Provider recovers. The same input must start over instead of
	// being deduplicated to the dead session.
	mu.Lock()
	providerDown = false
	mu.Unlock()

	second := startAndWait(t, o, userID, model.StartRequest{InputText: testInput})
	assert.False(t, second.Deduped)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	status, err = o.Status(context.Background(), second.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionDone, status.Status)
	require.NotNil(t, status.ReportID)
}

func TestSingleAgentFailureFailsSession(t *testing.T) {
	store := newFakeStore()
	composer := composerJSON(t)
	gen := &fakeGen{fn: func(req llm.Request) (json.RawMessage, error) {
		switch {
		case strings.Contains(req.System, "research agent"):
			return nil, errors.New("provider unavailable")
		case strings.Contains(req.System, "scoring agent"):
			return json.RawMessage(scoringJSON), nil
		case strings.Contains(req.System, "composer agent"):
			return composer, nil
		default:
			return json.RawMessage(`{}`), nil
		}
	}}
	o := newTestOrchestrator(store, gen)

	resp := startAndWait(t, o, uuid.New(), model.StartRequest{InputText: testInput})

	status, err := o.Status(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "research")
	assert.Nil(t, status.ReportID)
	assert.Empty(t, store.reports, "no partial report on agent failure")
}

func TestUnparseableComposerOutputFailsSession(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGen{fn: func(req llm.Request) (json.RawMessage, error) {
		switch {
		case strings.Contains(req.System, "scoring agent"):
			return json.RawMessage(scoringJSON), nil
		case strings.Contains(req.System, "composer agent"):
			return json.RawMessage(`{"summary": "x", "sections": [], "key_findings": []}`), nil
		default:
			return json.RawMessage(`{}`), nil
		}
	}}
	o := newTestOrchestrator(store, gen)

	resp := startAndWait(t, o, uuid.New(), model.StartRequest{InputText: testInput})

	status, err := o.Status(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "composer")
	assert.Empty(t, store.reports)
}

// brokenResultStore drops agent result writes, simulating a storage
// outage mid-pipeline. The reaper must still drive the session to a
// terminal state.
type brokenResultStore struct {
	*fakeStore
}

func (b *brokenResultStore) CompleteAgentResult(context.Context, *model.AgentResult) error {
	return errors.New("write failed")
}

func TestReaperFailsStuckSession(t *testing.T) {
	store := &brokenResultStore{fakeStore: newFakeStore()}
	o := newTestOrchestrator(store, happyGen(t))

	resp := startAndWait(t, o, uuid.New(), model.StartRequest{InputText: testInput})

	status, err := o.Status(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "deadline")
}

func TestStatusUnknownSession(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), happyGen(t))
	_, err := o.Status(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestParseComposerOutputValidation(t *testing.T) {
	good := composerJSON(t)

	t.Run("valid", func(t *testing.T) {
		out, err := parseComposerOutput(good)
		require.NoError(t, err)
		assert.Len(t, out.Sections, model.ReportSectionCount)
		for i, s := range out.Sections {
			assert.Equal(t, i+1, s.Number)
			assert.Equal(t, model.SectionTitles[i+1], s.Title)
		}
	})

	t.Run("duplicate section number", func(t *testing.T) {
		var out composerOutput
		require.NoError(t, json.Unmarshal(good, &out))
		out.Sections[3].Number = 3
		raw, err := json.Marshal(out)
		require.NoError(t, err)
		_, err = parseComposerOutput(raw)
		assert.Error(t, err)
	})

	t.Run("empty section body", func(t *testing.T) {
		var out composerOutput
		require.NoError(t, json.Unmarshal(good, &out))
		out.Sections[7].Content = "  "
		raw, err := json.Marshal(out)
		require.NoError(t, err)
		_, err = parseComposerOutput(raw)
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := parseComposerOutput(json.RawMessage(`"plain text"`))
		assert.Error(t, err)
	})
}
