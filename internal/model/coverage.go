// Package model defines the domain types shared across vetra:
// conversation coverage, validation sessions, agent results, reports,
// and shareable links.
package model

import (
	"encoding/json"
	"fmt"
)

// CoverageDepth classifies how specifically a conversation has addressed
// a topic.
type CoverageDepth string

const (
	DepthNone    CoverageDepth = "none"
	DepthShallow CoverageDepth = "shallow"
	DepthDeep    CoverageDepth = "deep"
)

// UnmarshalJSON accepts both the current depth strings and the legacy
// boolean representation stored by early coverage snapshots
// (true → shallow, false → none). Unknown values degrade to none rather
// than failing the whole snapshot.
func (d *CoverageDepth) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("model: unmarshal coverage depth: %w", err)
	}
	switch t := v.(type) {
	case bool:
		if t {
			*d = DepthShallow
		} else {
			*d = DepthNone
		}
	case string:
		switch CoverageDepth(t) {
		case DepthNone, DepthShallow, DepthDeep:
			*d = CoverageDepth(t)
		default:
			*d = DepthNone
		}
	case nil:
		*d = DepthNone
	default:
		*d = DepthNone
	}
	return nil
}

// TopicKey identifies one interview topic.
type TopicKey string

// The 13 core topics. Readiness arithmetic counts these only.
const (
	TopicCompanyName   TopicKey = "company_name"
	TopicCustomer      TopicKey = "customer"
	TopicProblem       TopicKey = "problem"
	TopicSolution      TopicKey = "solution"
	TopicCompetitors   TopicKey = "competitors"
	TopicInnovation    TopicKey = "innovation"
	TopicDemand        TopicKey = "demand"
	TopicResearch      TopicKey = "research"
	TopicUniqueness    TopicKey = "uniqueness"
	TopicWebsites      TopicKey = "websites"
	TopicIndustry      TopicKey = "industry"
	TopicBusinessModel TopicKey = "business_model"
	TopicStage         TopicKey = "stage"
)

// The 4 deep-dive topics. They sharpen report quality but never unlock
// the pipeline on their own.
const (
	TopicAIStrategy        TopicKey = "ai_strategy"
	TopicRiskAwareness     TopicKey = "risk_awareness"
	TopicExecutionPlan     TopicKey = "execution_plan"
	TopicInvestorReadiness TopicKey = "investor_readiness"
)

// CoreTopicKeys lists the topics that determine readiness.
var CoreTopicKeys = []TopicKey{
	TopicCompanyName, TopicCustomer, TopicProblem, TopicSolution,
	TopicCompetitors, TopicInnovation, TopicDemand, TopicResearch,
	TopicUniqueness, TopicWebsites, TopicIndustry, TopicBusinessModel,
	TopicStage,
}

// DeepDiveTopicKeys lists the optional deep-dive topics.
var DeepDiveTopicKeys = []TopicKey{
	TopicAIStrategy, TopicRiskAwareness, TopicExecutionPlan,
	TopicInvestorReadiness,
}

// AllTopicKeys is CoreTopicKeys followed by DeepDiveTopicKeys (17 keys).
var AllTopicKeys = append(append([]TopicKey{}, CoreTopicKeys...), DeepDiveTopicKeys...)

// Coverage maps every topic to its depth. All 17 keys are always present;
// use NewCoverage to construct and Normalize after decoding external data.
type Coverage map[TopicKey]CoverageDepth

// NewCoverage returns a coverage map with all 17 topics at none.
func NewCoverage() Coverage {
	c := make(Coverage, len(AllTopicKeys))
	for _, k := range AllTopicKeys {
		c[k] = DepthNone
	}
	return c
}

// Normalize fills any missing topic with none and drops unknown keys,
// restoring the all-keys-present invariant after JSON decoding.
func (c Coverage) Normalize() Coverage {
	out := NewCoverage()
	for _, k := range AllTopicKeys {
		if d, ok := c[k]; ok {
			out[k] = d
		}
	}
	return out
}

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchanged message in a validation conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ReadinessTier names which admission policy unlocked the pipeline.
type ReadinessTier string

const (
	TierQuick  ReadinessTier = "quick"
	TierNormal ReadinessTier = "normal"
	TierForced ReadinessTier = "forced"
)

// ReadinessDecision is derived on demand from coverage plus the user
// message count. It is never stored.
type ReadinessDecision struct {
	Ready bool          `json:"ready"`
	Tier  ReadinessTier `json:"tier,omitempty"`
}
