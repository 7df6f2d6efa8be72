package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vetra-ai/vetra/internal/llm"
	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/playbook"
)

// Shared tone block injected into every agent prompt.
const promptTone = `You are a sharp startup advisor. Write like a smart friend who knows startups inside out.
- Short sentences. One idea per sentence.
- Lead with the number when you have one.
- Be honest, not polite.
- Be specific to THIS startup, never generic.`

var agentSystemPrompts = map[model.AgentName]string{
	model.AgentProfile: promptTone + `

You are the profile agent. Distill the founder's raw input into a clean startup profile: what it is, for whom, against what problem, and how it makes money.`,
	model.AgentResearch: promptTone + `

You are the research agent. Estimate market size (TAM, SAM, SOM) and growth for this startup's segment. State your methodology and name your sources.`,
	model.AgentCompetitors: promptTone + `

You are the competitors agent. Map the direct and indirect competition and the gaps between them. Rate the threat each direct competitor poses.`,
	model.AgentScoring: promptTone + `

You are the scoring agent. Score the startup 0-100 on each weighted dimension and compute the weighted overall score. Justify every dimension score in one sentence.`,
	model.AgentMVP: promptTone + `

You are the mvp agent. Design the smallest product that tests the riskiest assumption, with 90-day milestones and the metrics that would prove demand.`,
}

var stringArraySchema = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

func competitorSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":         map[string]any{"type": "string"},
				"description":  map[string]any{"type": "string"},
				"strengths":    stringArraySchema,
				"weaknesses":   stringArraySchema,
				"threat_level": map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
			},
			"required": []string{"name", "description"},
		},
	}
}

// agentSchemas constrain each agent's structured output.
var agentSchemas = map[model.AgentName]map[string]any{
	model.AgentProfile: {
		"type": "object",
		"properties": map[string]any{
			"company_name":    map[string]any{"type": "string"},
			"one_liner":       map[string]any{"type": "string"},
			"customer":        map[string]any{"type": "string"},
			"problem":         map[string]any{"type": "string"},
			"solution":        map[string]any{"type": "string"},
			"differentiation": map[string]any{"type": "string"},
			"business_model":  map[string]any{"type": "string"},
			"stage":           map[string]any{"type": "string"},
		},
		"required": []string{"company_name", "one_liner", "customer", "problem", "solution"},
	},
	model.AgentResearch: {
		"type": "object",
		"properties": map[string]any{
			"tam":         map[string]any{"type": "string"},
			"sam":         map[string]any{"type": "string"},
			"som":         map[string]any{"type": "string"},
			"growth_rate": map[string]any{"type": "string"},
			"methodology": map[string]any{"type": "string"},
			"sources":     stringArraySchema,
			"trends":      stringArraySchema,
		},
		"required": []string{"tam", "sam", "som", "methodology"},
	},
	model.AgentCompetitors: {
		"type": "object",
		"properties": map[string]any{
			"direct_competitors":   competitorSchema(),
			"indirect_competitors": competitorSchema(),
			"market_gaps":          stringArraySchema,
		},
		"required": []string{"direct_competitors", "market_gaps"},
	},
	model.AgentScoring: {
		"type": "object",
		"properties": map[string]any{
			"overall_score": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			"dimensions": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "integer"},
			},
			"rationale": map[string]any{"type": "string"},
		},
		"required": []string{"overall_score", "dimensions"},
	},
	model.AgentMVP: {
		"type": "object",
		"properties": map[string]any{
			"mvp_description":    map[string]any{"type": "string"},
			"core_features":      stringArraySchema,
			"milestones_90_days": stringArraySchema,
			"success_metrics":    stringArraySchema,
			"estimated_cost":     map[string]any{"type": "string"},
		},
		"required": []string{"mvp_description", "core_features", "milestones_90_days"},
	},
}

// buildAgentRequest assembles the generation call for one analysis
// agent. The playbook fragment, when an industry was detected, gives
// every agent vertical-specific context.
func buildAgentRequest(agent model.AgentName, sess *model.Session, pb *playbook.Playbook) llm.Request {
	system := agentSystemPrompts[agent]
	if pb != nil {
		system += "\n\n" + pb.PromptFragment()
	}
	if agent == model.AgentScoring {
		var dims strings.Builder
		dims.WriteString("\n\nWeighted dimensions (weights sum to 100):\n")
		for _, d := range model.DimensionWeights {
			fmt.Fprintf(&dims, "- %s (%s): weight %d\n", d.Name, d.Key, d.Weight)
		}
		system += dims.String()
	}
	return llm.Request{
		System: system,
		User:   buildIdeaContext(sess),
		Schema: agentSchemas[agent],
	}
}

// buildIdeaContext renders the founder input plus the structured facts
// extracted during the interview.
func buildIdeaContext(sess *model.Session) string {
	var b strings.Builder
	b.WriteString("Founder's idea:\n")
	b.WriteString(sess.InputText)
	if ic := sess.InterviewContext; ic != nil && len(ic.Extracted) > 0 {
		b.WriteString("\n\nFacts extracted from the founder interview:\n")
		keys := make([]string, 0, len(ic.Extracted))
		for k := range ic.Extracted {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := strings.TrimSpace(ic.Extracted[k]); v != "" {
				fmt.Fprintf(&b, "- %s: %s\n", k, v)
			}
		}
	}
	return b.String()
}
