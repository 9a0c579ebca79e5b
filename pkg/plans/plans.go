package plans

import "sort"

// Plan identifies a billing plan tier.
type Plan string

// Known plans, ordered by rank.
const (
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

// Feature identifies a plan-gated capability.
type Feature string

// Known features.
const (
	FeatureTeamManagement    Feature = "team_management"
	FeatureBasicAnalytics    Feature = "basic_analytics"
	FeaturePrioritySupport   Feature = "priority_support"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeatureAPIAccess         Feature = "api_access"
	FeatureSSO               Feature = "sso"
)

// Limits holds the per-plan resource ceilings.
type Limits struct {
	MaxUsers    int `json:"max_users"`
	MaxProjects int `json:"max_projects"`
}

var planRanks = map[Plan]int{
	PlanStarter:    1,
	PlanGrowth:     2,
	PlanEnterprise: 3,
}

var planLimits = map[Plan]Limits{
	PlanStarter:    {MaxUsers: 5, MaxProjects: 10},
	PlanGrowth:     {MaxUsers: 50, MaxProjects: 100},
	PlanEnterprise: {MaxUsers: 500, MaxProjects: 1000},
}

var featureMinPlan = map[Feature]Plan{
	FeatureTeamManagement:    PlanStarter,
	FeatureBasicAnalytics:    PlanStarter,
	FeaturePrioritySupport:   PlanGrowth,
	FeatureAdvancedAnalytics: PlanGrowth,
	FeatureAPIAccess:         PlanEnterprise,
	FeatureSSO:               PlanEnterprise,
}

// Rank returns the ordering rank of a plan. Unknown plans rank 0, below
// every real plan.
func Rank(p Plan) int {
	return planRanks[p]
}

// IsValid reports whether p is a member of the plan catalog.
func IsValid(p Plan) bool {
	_, ok := planRanks[p]
	return ok
}

// IsValidFeature reports whether f is a member of the feature catalog.
func IsValidFeature(f Feature) bool {
	_, ok := featureMinPlan[f]
	return ok
}

// LimitsFor returns the resource limits for a plan.
func LimitsFor(p Plan) (Limits, bool) {
	l, ok := planLimits[p]
	return l, ok
}

// MinPlanFor returns the minimum plan required to use a feature.
func MinPlanFor(f Feature) (Plan, bool) {
	p, ok := featureMinPlan[f]
	return p, ok
}

// All returns every plan in the catalog in ascending rank order.
func All() []Plan {
	out := make([]Plan, 0, len(planRanks))
	for p := range planRanks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return planRanks[out[i]] < planRanks[out[j]] })
	return out
}

// FeaturesFor returns the sorted list of features available on a plan.
func FeaturesFor(p Plan) []Feature {
	rank, ok := planRanks[p]
	if !ok {
		return nil
	}
	out := make([]Feature, 0, len(featureMinPlan))
	for f, min := range featureMinPlan {
		if rank >= planRanks[min] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
