package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/vetra-ai/vetra/internal/llm"
	"github.com/vetra-ai/vetra/internal/model"
)

const composerSystemPrompt = promptTone + `

You are the composer agent. Merge the analysis agents' outputs into the final validation report.
Produce exactly 14 sections, numbered 1 to 14, with these titles in order:
%s
Every section body must draw on the agent outputs above, not restate them. The summary is three sentences max. Key findings are the 3-6 facts the founder must not ignore.`

type composerOutput struct {
	Summary     string                `json:"summary"`
	Sections    []model.ReportSection `json:"sections"`
	KeyFindings []string              `json:"key_findings"`
}

type scoringPayload struct {
	OverallScore int            `json:"overall_score"`
	Dimensions   map[string]int `json:"dimensions"`
	Rationale    string         `json:"rationale"`
}

// compose runs once per session, by the observer that won the
// running → composing compare-and-set. Any failure here fails the
// session; a malformed report is never persisted.
func (o *Orchestrator) compose(ctx context.Context, sess *model.Session, results []model.AgentResult) {
	payloads := make(map[model.AgentName]json.RawMessage, len(results))
	for _, r := range results {
		payloads[r.Agent] = r.Payload
	}

	var scoring scoringPayload
	if err := json.Unmarshal(payloads[model.AgentScoring], &scoring); err != nil {
		o.failCompose(ctx, sess.ID, fmt.Sprintf("composer: scoring payload: %v", err))
		return
	}
	if scoring.OverallScore < 0 || scoring.OverallScore > 100 {
		o.failCompose(ctx, sess.ID, fmt.Sprintf("composer: overall score %d out of range", scoring.OverallScore))
		return
	}

	raw, err := o.gen.Generate(ctx, buildComposerRequest(sess, payloads))
	if err != nil {
		o.failCompose(ctx, sess.ID, fmt.Sprintf("composer: %v", err))
		return
	}

	out, err := parseComposerOutput(raw)
	if err != nil {
		o.failCompose(ctx, sess.ID, fmt.Sprintf("composer: %v", err))
		return
	}

	details, err := json.Marshal(payloads)
	if err != nil {
		o.failCompose(ctx, sess.ID, fmt.Sprintf("composer: marshal details: %v", err))
		return
	}

	report := &model.Report{
		ID:          uuid.New(),
		SessionID:   sess.ID,
		StartupID:   sess.StartupID,
		Score:       scoring.OverallScore,
		Verdict:     model.VerdictForScore(scoring.OverallScore),
		Summary:     out.Summary,
		Sections:    out.Sections,
		KeyFindings: out.KeyFindings,
		Details:     details,
	}
	if err := o.store.CreateReport(ctx, report); err != nil {
		o.failCompose(ctx, sess.ID, fmt.Sprintf("composer: persist report: %v", err))
		return
	}

	done, err := o.store.CompleteSession(ctx, sess.ID, report.ID)
	if err != nil {
		o.failCompose(ctx, sess.ID, fmt.Sprintf("composer: complete session: %v", err))
		return
	}
	if !done {
		o.logger.Warn("session left composing before completion",
			slog.String("session_id", sess.ID.String()))
		return
	}
	o.logger.Info("validation report composed",
		slog.String("session_id", sess.ID.String()),
		slog.String("report_id", report.ID.String()),
		slog.Int("score", report.Score),
		slog.String("verdict", string(report.Verdict)))
}

func (o *Orchestrator) failCompose(ctx context.Context, id uuid.UUID, msg string) {
	o.logger.Warn("composition failed",
		slog.String("session_id", id.String()),
		slog.String("error", msg))
	if err := o.store.FailSession(ctx, id, msg); err != nil {
		o.logger.Error("fail session after composition error",
			slog.String("session_id", id.String()),
			slog.String("error", err.Error()))
	}
}

func buildComposerRequest(sess *model.Session, payloads map[model.AgentName]json.RawMessage) llm.Request {
	var titles strings.Builder
	for i := 1; i <= model.ReportSectionCount; i++ {
		fmt.Fprintf(&titles, "%d. %s\n", i, model.SectionTitles[i])
	}

	var user strings.Builder
	user.WriteString(buildIdeaContext(sess))
	user.WriteString("\n\nAgent outputs:\n")
	for _, agent := range model.AnalysisAgents {
		fmt.Fprintf(&user, "\n### %s\n%s\n", agent, payloads[agent])
	}

	return llm.Request{
		System: fmt.Sprintf(composerSystemPrompt, titles.String()),
		User:   user.String(),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{"type": "string"},
				"sections": map[string]any{
					"type":     "array",
					"minItems": model.ReportSectionCount,
					"maxItems": model.ReportSectionCount,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"number":  map[string]any{"type": "integer", "minimum": 1, "maximum": model.ReportSectionCount},
							"title":   map[string]any{"type": "string"},
							"content": map[string]any{"type": "string"},
							"score":   map[string]any{"type": "integer"},
						},
						"required": []string{"number", "title", "content"},
					},
				},
				"key_findings": stringArraySchema,
			},
			"required": []string{"summary", "sections", "key_findings"},
		},
	}
}

// parseComposerOutput enforces the fixed report shape: all 14 sections
// present exactly once, canonical titles, non-empty bodies.
func parseComposerOutput(raw json.RawMessage) (*composerOutput, error) {
	var out composerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unparseable output: %w", err)
	}
	if len(out.Sections) != model.ReportSectionCount {
		return nil, fmt.Errorf("expected %d sections, got %d", model.ReportSectionCount, len(out.Sections))
	}

	seen := make(map[int]bool, model.ReportSectionCount)
	for i := range out.Sections {
		s := &out.Sections[i]
		if s.Number < 1 || s.Number > model.ReportSectionCount {
			return nil, fmt.Errorf("section number %d out of range", s.Number)
		}
		if seen[s.Number] {
			return nil, fmt.Errorf("duplicate section %d", s.Number)
		}
		seen[s.Number] = true
		if strings.TrimSpace(s.Content) == "" {
			return nil, fmt.Errorf("section %d has no content", s.Number)
		}
		s.Title = model.SectionTitles[s.Number]
	}

	sort.Slice(out.Sections, func(i, j int) bool {
		return out.Sections[i].Number < out.Sections[j].Number
	})
	return &out, nil
}
