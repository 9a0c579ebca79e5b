package plans

// Allows decides whether a plan grants access to a feature.
//
// Unknown plans and unknown features are denied rather than treated as
// errors: gating paths receive arbitrary stored plan strings and arbitrary
// feature keys from URLs, and a bad key must never take down the gate.
// The decision is monotonic in plan rank: anything allowed on a plan is
// allowed on every higher-ranked plan.
func Allows(p Plan, f Feature) bool {
	min, ok := featureMinPlan[f]
	if !ok {
		return false
	}
	rank, ok := planRanks[p]
	if !ok {
		return false
	}
	return rank >= planRanks[min]
}
