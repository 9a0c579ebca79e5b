package billing

import (
	"strings"

	"github.com/platinummonkey/axle/pkg/plans"
)

// NormalizePlan maps a free-text plan label from a provider payload onto
// the catalog. Substring matches run before exact catalog membership so
// vendor nicknames like "Enterprise Annual" land on the right tier, with
// enterprise checked first since labels can mention more than one tier.
func NormalizePlan(raw string) (plans.Plan, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}
	switch {
	case strings.Contains(v, "enterprise"):
		return plans.PlanEnterprise, true
	case strings.Contains(v, "growth"), strings.Contains(v, "pro"):
		return plans.PlanGrowth, true
	case strings.Contains(v, "starter"), strings.Contains(v, "basic"):
		return plans.PlanStarter, true
	}
	if plans.IsValid(plans.Plan(v)) {
		return plans.Plan(v), true
	}
	return "", false
}

// NormalizeStatus maps provider lifecycle vocabulary onto the canonical
// status set. Payment-failure states collapse to canceled. Anything
// unrecognized is rejected rather than guessed, so a state we cannot map
// never grants entitlement.
func NormalizeStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trialing":
		return StatusTrialing, true
	case "active":
		return StatusActive, true
	case "canceled":
		return StatusCanceled, true
	case "unpaid", "past_due", "incomplete", "incomplete_expired":
		return StatusCanceled, true
	}
	return "", false
}
