// Package pipeline runs a validation session end to end: admission,
// fan-out to the five analysis agents, and composition of the final
// report. One orchestrator instance serves all sessions; sessions share
// no state with each other.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/vetra-ai/vetra/internal/llm"
	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/playbook"
)

// ErrInvalidInput marks admission failures that the caller can correct.
var ErrInvalidInput = errors.New("pipeline: invalid input")

const (
	defaultDeadline = 5 * time.Minute
	reapTimeout     = 10 * time.Second
)

// Options tune the orchestrator.
type Options struct {
	// Deadline bounds the wall-clock time of one whole session,
	// fan-out and composition included. After it the session is failed
	// rather than left running forever.
	Deadline time.Duration
}

type Orchestrator struct {
	store     Store
	gen       llm.Generator
	playbooks playbook.Table
	logger    *slog.Logger
	deadline  time.Duration

	wg       sync.WaitGroup
	inflight atomic.Int64
}

var pipelineMeter = otel.GetMeterProvider().Meter("vetra/pipeline")

func New(store Store, gen llm.Generator, table playbook.Table, logger *slog.Logger, opts Options) *Orchestrator {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	o := &Orchestrator{
		store:     store,
		gen:       gen,
		playbooks: table,
		logger:    logger,
		deadline:  deadline,
	}
	if gauge, err := pipelineMeter.Int64ObservableGauge("pipeline.sessions_inflight"); err == nil {
		_, _ = pipelineMeter.RegisterCallback(func(_ context.Context, obs otelmetric.Observer) error {
			obs.ObserveInt64(gauge, o.inflight.Load())
			return nil
		}, gauge)
	}
	return o
}

// countSession bumps a session lifecycle counter (best-effort,
// instruments lazily created).
func (o *Orchestrator) countSession(ctx context.Context, name string) {
	if counter, err := pipelineMeter.Int64Counter(name); err == nil {
		counter.Add(ctx, 1)
	}
}

// Inflight reports how many sessions are currently being processed.
func (o *Orchestrator) Inflight() int64 {
	return o.inflight.Load()
}

// Shutdown waits for in-flight sessions to finish or ctx to expire.
// Sessions cut off by process exit are caught by the deadline reaper on
// their next start, so this is best effort.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start admits one validation attempt. Input is normalized and bounded,
// identical attempts are deduplicated by input hash, and the analysis
// itself runs in the background: the caller gets a session id
// immediately and polls Status.
func (o *Orchestrator) Start(ctx context.Context, userID uuid.UUID, req model.StartRequest) (*model.StartResponse, error) {
	normalized := model.NormalizeInputText(req.InputText)
	if err := model.ValidateInputText(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sess := &model.Session{
		ID:               uuid.New(),
		UserID:           userID,
		StartupID:        req.StartupID,
		InputText:        normalized,
		InputHash:        inputHash(normalized, req.InterviewContext),
		InterviewContext: req.InterviewContext,
		Status:           model.SessionQueued,
	}
	stored, existed, err := o.store.CreateSession(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create session: %w", err)
	}
	if existed {
		o.logger.Info("start deduplicated to existing session",
			slog.String("session_id", stored.ID.String()),
			slog.String("status", string(stored.Status)))
		return &model.StartResponse{SessionID: stored.ID, Status: stored.Status, Deduped: true}, nil
	}

	claimed, err := o.store.TransitionSession(ctx, stored.ID, model.SessionQueued, model.SessionRunning)
	if err != nil {
		return nil, fmt.Errorf("pipeline: claim session: %w", err)
	}
	if !claimed {
		// Lost the claim race; whoever won is driving the session.
		return &model.StartResponse{SessionID: stored.ID, Status: model.SessionRunning, Deduped: true}, nil
	}

	o.wg.Add(1)
	o.inflight.Add(1)
	go o.run(stored)

	o.countSession(ctx, "pipeline.sessions_started")
	o.logger.Info("validation session started",
		slog.String("session_id", stored.ID.String()),
		slog.String("user_id", userID.String()),
		slog.Int("input_len", len(normalized)))
	return &model.StartResponse{SessionID: stored.ID, Status: model.SessionRunning}, nil
}

// Status is a pure read of the session state machine.
func (o *Orchestrator) Status(ctx context.Context, id uuid.UUID) (*model.StatusResponse, error) {
	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pipeline: session %s: %w", id, err)
	}
	return &model.StatusResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		ReportID:  sess.ReportID,
		Error:     sess.ErrorMessage,
	}, nil
}

// run drives one session from running to a terminal state. Detached
// from the start request's context: the caller only polls.
func (o *Orchestrator) run(sess *model.Session) {
	defer o.wg.Done()
	defer o.inflight.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), o.deadline)
	defer cancel()

	pb := o.playbooks.Detect(sess.InputText)
	if pb != nil {
		o.logger.Info("industry playbook detected",
			slog.String("session_id", sess.ID.String()),
			slog.String("industry", pb.Industry))
	}

	// The five agents are independent. No cancellation on first failure:
	// each records its own terminal result and the completion observer
	// decides the session's fate.
	var g errgroup.Group
	for _, agent := range model.AnalysisAgents {
		g.Go(func() error {
			o.runAgent(ctx, sess, agent, pb)
			o.observeCompletion(ctx, sess)
			return nil
		})
	}
	_ = g.Wait()

	// Exactly one terminal count per session, after everything joined.
	switch o.reap(sess.ID) {
	case model.SessionDone:
		o.countSession(context.Background(), "pipeline.sessions_completed")
	case model.SessionFailed:
		o.countSession(context.Background(), "pipeline.sessions_failed")
	}
}

func (o *Orchestrator) runAgent(ctx context.Context, sess *model.Session, agent model.AgentName, pb *playbook.Playbook) {
	started := time.Now()
	payload, err := o.gen.Generate(ctx, buildAgentRequest(agent, sess, pb))

	res := &model.AgentResult{
		SessionID:  sess.ID,
		Agent:      agent,
		Status:     model.AgentSucceeded,
		Payload:    payload,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		msg := err.Error()
		res.Status = model.AgentFailed
		res.Payload = nil
		res.Error = &msg
		o.logger.Warn("agent failed",
			slog.String("session_id", sess.ID.String()),
			slog.String("agent", string(agent)),
			slog.Int64("duration_ms", res.DurationMS),
			slog.String("error", msg))
	}

	if serr := o.store.CompleteAgentResult(ctx, res); serr != nil {
		// The observer count will stay short and the reaper fails the
		// session at the deadline.
		o.logger.Error("record agent result",
			slog.String("session_id", sess.ID.String()),
			slog.String("agent", string(agent)),
			slog.String("error", serr.Error()))
	}
}

// observeCompletion runs after every agent write. Once all five results
// are terminal, exactly one observer wins the running → composing
// compare-and-set and composes; with any failed agent the session fails
// as a whole, never a partial report.
func (o *Orchestrator) observeCompletion(ctx context.Context, sess *model.Session) {
	results, err := o.store.GetAgentResults(ctx, sess.ID)
	if err != nil {
		o.logger.Error("load agent results",
			slog.String("session_id", sess.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	if len(results) < len(model.AnalysisAgents) {
		return
	}

	var failed []string
	for _, r := range results {
		if r.Status == model.AgentFailed {
			failed = append(failed, string(r.Agent))
		}
	}
	if len(failed) > 0 {
		msg := fmt.Sprintf("agent failure: %v", failed)
		if err := o.store.FailSession(ctx, sess.ID, msg); err != nil {
			o.logger.Error("fail session",
				slog.String("session_id", sess.ID.String()),
				slog.String("error", err.Error()))
		}
		return
	}

	won, err := o.store.TransitionSession(ctx, sess.ID, model.SessionRunning, model.SessionComposing)
	if err != nil {
		o.logger.Error("transition to composing",
			slog.String("session_id", sess.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	if !won {
		return
	}
	o.compose(ctx, sess, results)
}

// reap is the safety net run after the fan-out joins: a session still
// non-terminal at this point is stuck and is failed with a fresh
// context, so sessions never stay running forever. Returns the final
// status, or "" when it could not be determined.
func (o *Orchestrator) reap(id uuid.UUID) model.SessionStatus {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		o.logger.Error("reap: load session", slog.String("session_id", id.String()), slog.String("error", err.Error()))
		return ""
	}
	if sess.Status.Terminal() {
		return sess.Status
	}
	o.logger.Warn("reaping stuck session",
		slog.String("session_id", id.String()),
		slog.String("status", string(sess.Status)))
	if err := o.store.FailSession(ctx, id, "pipeline deadline exceeded"); err != nil {
		o.logger.Error("reap: fail session", slog.String("session_id", id.String()), slog.String("error", err.Error()))
		return ""
	}
	return model.SessionFailed
}

// inputHash is the idempotency key: identical normalized input plus
// interview context always maps to the same session.
func inputHash(normalized string, ic *model.InterviewContext) string {
	h := sha256.New()
	h.Write([]byte(normalized))
	if ic != nil {
		h.Write([]byte{0})
		ctxJSON, err := json.Marshal(ic)
		if err == nil {
			h.Write(ctxJSON)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
