package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Verdict is the headline recommendation derived from the overall score.
type Verdict string

const (
	VerdictGo      Verdict = "go"
	VerdictCaution Verdict = "caution"
	VerdictNoGo    Verdict = "no_go"
)

// VerdictForScore maps an overall score (0-100) to a verdict.
// Thresholds: 75+ go, 50+ caution, below no-go.
func VerdictForScore(score int) Verdict {
	switch {
	case score >= 75:
		return VerdictGo
	case score >= 50:
		return VerdictCaution
	default:
		return VerdictNoGo
	}
}

// ReportSectionCount is the fixed number of sections in a finished report.
const ReportSectionCount = 14

// SectionTitles are the canonical titles of the 14 report sections,
// indexed by section number (1-based).
var SectionTitles = [ReportSectionCount + 1]string{
	1:  "Executive Summary",
	2:  "Problem Analysis",
	3:  "Solution Assessment",
	4:  "Market Size",
	5:  "Competition",
	6:  "Business Model",
	7:  "Go-to-Market",
	8:  "Team Assessment",
	9:  "Timing Analysis",
	10: "Risk Assessment",
	11: "Financial Projections",
	12: "Validation Status",
	13: "Recommendations",
	14: "Appendix",
}

// ReportSection is one of the 14 fixed report sections.
type ReportSection struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Score   *int   `json:"score,omitempty"`
}

// DimensionWeight is one axis of the composite score. Weights sum to 100.
type DimensionWeight struct {
	Key    string
	Name   string
	Weight int
}

// DimensionWeights is the 7-dimension scoring configuration used by the
// scoring agent prompt and the composed score.
var DimensionWeights = []DimensionWeight{
	{Key: "problem_clarity", Name: "Problem Clarity", Weight: 15},
	{Key: "solution_strength", Name: "Solution Strength", Weight: 15},
	{Key: "market_size", Name: "Market Size", Weight: 15},
	{Key: "competition", Name: "Competition", Weight: 10},
	{Key: "business_model", Name: "Business Model", Weight: 15},
	{Key: "team_fit", Name: "Team Fit", Weight: 15},
	{Key: "timing", Name: "Timing", Weight: 15},
}

// Report is the final validation artifact. Immutable once created.
type Report struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	StartupID   *uuid.UUID      `json:"startup_id,omitempty"`
	Score       int             `json:"score"`
	Verdict     Verdict         `json:"verdict"`
	Summary     string          `json:"summary"`
	Sections    []ReportSection `json:"sections"`
	KeyFindings []string        `json:"key_findings"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
