package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllows(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		feature Feature
		want    bool
	}{
		{"starter gets team management", PlanStarter, FeatureTeamManagement, true},
		{"starter gets basic analytics", PlanStarter, FeatureBasicAnalytics, true},
		{"starter denied advanced analytics", PlanStarter, FeatureAdvancedAnalytics, false},
		{"starter denied sso", PlanStarter, FeatureSSO, false},
		{"growth gets advanced analytics", PlanGrowth, FeatureAdvancedAnalytics, true},
		{"growth gets priority support", PlanGrowth, FeaturePrioritySupport, true},
		{"growth denied api access", PlanGrowth, FeatureAPIAccess, false},
		{"enterprise gets sso", PlanEnterprise, FeatureSSO, true},
		{"enterprise gets api access", PlanEnterprise, FeatureAPIAccess, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allows(tt.plan, tt.feature))
		})
	}
}

func TestAllowsUnknownInputs(t *testing.T) {
	assert.False(t, Allows(Plan("platinum"), FeatureBasicAnalytics))
	assert.False(t, Allows(Plan(""), FeatureBasicAnalytics))
	assert.False(t, Allows(PlanEnterprise, Feature("time_travel")))
	assert.False(t, Allows(PlanEnterprise, Feature("")))
}

// Anything allowed on a plan must stay allowed on every higher-ranked plan.
func TestAllowsMonotonicInRank(t *testing.T) {
	all := All()
	features := FeaturesFor(PlanEnterprise)

	for i, lower := range all {
		for _, higher := range all[i:] {
			for _, f := range features {
				if Allows(lower, f) {
					assert.True(t, Allows(higher, f),
						"feature %s allowed on %s but not on higher plan %s", f, lower, higher)
				}
			}
		}
	}
}
