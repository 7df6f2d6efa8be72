// Package coverage derives topic coverage from a validation conversation
// and decides whether enough has been gathered to run the pipeline.
//
// Coverage is always re-derived from the full transcript rather than
// patched incrementally. Recomputation keeps the depth of every topic a
// maximum over all evidence seen so far, so replaying a longer transcript
// can never lower a topic that already reached deep.
package coverage

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/vetra-ai/vetra/internal/model"
)

// topicEvidence maps each topic to the lowercase markers that count as
// evidence for it. Matching is plain substring containment on the
// lowercased sentence.
var topicEvidence = map[model.TopicKey][]string{
	model.TopicCompanyName: {
		"we're building", "we are building", "our startup", "our company",
		"called", "named", "the name is", "we call it",
	},
	model.TopicCustomer: {
		"customer", "target audience", "target market", "our users",
		"buyer", "persona", "segment", "icp", "for founders", "for teams",
		"small business", "enterprise customers",
	},
	model.TopicProblem: {
		"problem", "pain point", "struggle", "frustrat", "inefficien",
		"time-consuming", "time consuming", "broken", "manual process",
		"waste", "bottleneck",
	},
	model.TopicSolution: {
		"solution", "our product", "our platform", "our app", "our tool",
		"we solve", "solves", "we automate", "core feature", "workflow",
	},
	model.TopicCompetitors: {
		"competitor", "alternative", "rival", "vs ", "compared to",
		"incumbent", "existing players", "similar to",
	},
	model.TopicInnovation: {
		"innovat", "novel", "new approach", "breakthrough", "patent",
		"proprietary", "first to", "never been done",
	},
	model.TopicDemand: {
		"demand", "waitlist", "signups", "sign-ups", "preorder",
		"pre-order", "paying customers", "revenue", "mrr", "arr",
		"traction", "letters of intent", "pilot",
	},
	model.TopicResearch: {
		"market size", "tam", "sam", "som", "market research", "survey",
		"interviewed", "user interviews", "study", "growth rate",
		"according to",
	},
	model.TopicUniqueness: {
		"unique", "differentiat", "moat", "unlike", "only one",
		"unfair advantage", "what sets us apart", "secret sauce",
	},
	model.TopicWebsites: {
		"http://", "https://", "www.",
	},
	model.TopicIndustry: {
		"saas", "fintech", "healthtech", "healthcare", "health tech",
		"e-commerce", "ecommerce", "marketplace", "edtech", "education",
		"real estate", "logistics", "gaming", "food", "restaurant",
		"industry", "vertical",
	},
	model.TopicBusinessModel: {
		"b2b", "b2c", "b2b2c", "subscription", "business model",
		"pricing", "freemium", "commission", "take rate", "licensing",
		"per seat", "per-seat", "usage-based",
	},
	model.TopicStage: {
		"idea stage", "pre-seed", "preseed", "seed round", "seed stage",
		"series a", "series b", "mvp", "prototype", "launched",
		"pre-launch", "beta",
	},
	model.TopicAIStrategy: {
		"ai ", " ai.", " ai,", "machine learning", "ml model", "llm",
		"data moat", "training data", "fine-tun", "our model",
		"algorithm",
	},
	model.TopicRiskAwareness: {
		"risk", "failure mode", "could fail", "mitigat", "worst case",
		"threat", "regulat", "compliance", "churn risk",
	},
	model.TopicExecutionPlan: {
		"roadmap", "milestone", "90 days", "90-day", "next quarter",
		"hiring", "we will hire", "launch plan", "timeline", "sprint",
	},
	model.TopicInvestorReadiness: {
		"fundrais", "investor", "raising", "raise a", "pitch deck",
		"valuation", "runway", "burn rate", "key metrics", "cap table",
	},
}

// reasoningMarkers promote a matched sentence to deep even without
// numeric data: the founder is explaining, not just naming.
var reasoningMarkers = []string{
	"because", "so that", "which means", "therefore", "the reason",
	"that's why", "as a result",
}

var sentenceSplitRe = regexp.MustCompile(`[.!?\n]+`)

// URLs carry dots that would fracture the sentence split ("www.acme.com"
// into three fragments), so each one is collapsed to a dotless scheme
// marker first. The marker still trips the websites evidence and the
// URL specifics branch in the sentence it came from.
var urlRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

// Derive recomputes coverage from the full transcript. Only user turns
// carry evidence; assistant questions never raise depth. Pure function,
// no side effects.
func Derive(turns []model.Turn) model.Coverage {
	cov := model.NewCoverage()
	for _, t := range turns {
		if t.Role != model.RoleUser {
			continue
		}
		content := urlRe.ReplaceAllString(t.Content, "https://link")
		for _, sentence := range sentenceSplitRe.Split(content, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			lower := strings.ToLower(sentence)
			depth := model.DepthShallow
			if hasSpecifics(sentence, lower) {
				depth = model.DepthDeep
			}
			for topic, markers := range topicEvidence {
				if !matchesAny(lower, markers) {
					continue
				}
				if deeper(depth, cov[topic]) {
					cov[topic] = depth
				}
			}
		}
	}
	return cov
}

func matchesAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// hasSpecifics reports whether a sentence carries concrete detail:
// numbers, money or percentage figures, URLs, named entities beyond the
// sentence start, or explicit reasoning.
func hasSpecifics(sentence, lower string) bool {
	if strings.ContainsAny(sentence, "0123456789") {
		return true
	}
	if strings.ContainsAny(sentence, "$%") {
		return true
	}
	if strings.Contains(lower, "http://") || strings.Contains(lower, "https://") || strings.Contains(lower, "www.") {
		return true
	}
	for _, m := range reasoningMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return namedEntityCount(sentence) >= 2
}

// namedEntityCount counts capitalized words past the first token. The
// first token is skipped since sentence case capitalizes it anyway.
func namedEntityCount(sentence string) int {
	fields := strings.Fields(sentence)
	n := 0
	for i, f := range fields {
		if i == 0 {
			continue
		}
		r := []rune(f)
		if len(r) >= 2 && unicode.IsUpper(r[0]) && unicode.IsLower(r[1]) {
			n++
		}
	}
	return n
}

func deeper(a, b model.CoverageDepth) bool {
	return depthRank(a) > depthRank(b)
}

func depthRank(d model.CoverageDepth) int {
	switch d {
	case model.DepthDeep:
		return 2
	case model.DepthShallow:
		return 1
	default:
		return 0
	}
}
