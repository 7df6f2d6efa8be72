package coverage

import "github.com/vetra-ai/vetra/internal/model"

// Thresholds holds the readiness tuning knobs. The defaults are
// product-tuned and should not change without re-running the interview
// quality evaluation.
type Thresholds struct {
	// Quick: short interview with broad and deep coverage.
	QuickMessages int
	QuickShallow  int
	QuickDeep     int
	// Normal: longer interview, slightly relaxed coverage.
	NormalMessages int
	NormalShallow  int
	NormalDeep     int
	// Forced: after this many user messages the pipeline unlocks
	// unconditionally. Guarantees every conversation terminates.
	ForcedMessages int
}

// DefaultThresholds are the production values.
var DefaultThresholds = Thresholds{
	QuickMessages:  3,
	QuickShallow:   9,
	QuickDeep:      4,
	NormalMessages: 5,
	NormalShallow:  8,
	NormalDeep:     3,
	ForcedMessages: 10,
}

// IsCovered reports whether a topic has at least shallow coverage.
func IsCovered(d model.CoverageDepth) bool {
	return d == model.DepthShallow || d == model.DepthDeep
}

// IsDeep reports whether a topic reached deep coverage.
func IsDeep(d model.CoverageDepth) bool {
	return d == model.DepthDeep
}

// CountCore counts core topics at or above minDepth. Deep-dive topics
// never contribute to readiness.
func CountCore(cov model.Coverage, minDepth model.CoverageDepth) int {
	n := 0
	for _, k := range model.CoreTopicKeys {
		d := cov[k]
		if minDepth == model.DepthDeep {
			if IsDeep(d) {
				n++
			}
		} else if IsCovered(d) {
			n++
		}
	}
	return n
}

// CoreComplete reports whether all 13 core topics have at least shallow
// coverage.
func CoreComplete(cov model.Coverage) bool {
	for _, k := range model.CoreTopicKeys {
		if !IsCovered(cov[k]) {
			return false
		}
	}
	return true
}

// HasMinimumData reports the minimum bar for a meaningful report:
// problem, customer and company name each at least shallow.
func HasMinimumData(cov model.Coverage) bool {
	return IsCovered(cov[model.TopicProblem]) &&
		IsCovered(cov[model.TopicCustomer]) &&
		IsCovered(cov[model.TopicCompanyName])
}

// CheckReadiness decides whether the pipeline may start. Tiers are
// evaluated quick, normal, forced; the first to match names the
// decision. Quick and normal additionally require the minimum bar, the
// forced tier does not.
func CheckReadiness(cov model.Coverage, userMessages int, th Thresholds) model.ReadinessDecision {
	coreShallowPlus := CountCore(cov, model.DepthShallow)
	coreDeep := CountCore(cov, model.DepthDeep)
	minBar := HasMinimumData(cov)

	if userMessages >= th.QuickMessages && coreShallowPlus >= th.QuickShallow && coreDeep >= th.QuickDeep && minBar {
		return model.ReadinessDecision{Ready: true, Tier: model.TierQuick}
	}
	if userMessages >= th.NormalMessages && coreShallowPlus >= th.NormalShallow && coreDeep >= th.NormalDeep && minBar {
		return model.ReadinessDecision{Ready: true, Tier: model.TierNormal}
	}
	if userMessages >= th.ForcedMessages {
		return model.ReadinessDecision{Ready: true, Tier: model.TierForced}
	}
	return model.ReadinessDecision{}
}
