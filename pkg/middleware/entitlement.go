package middleware

import (
	"fmt"
	"net/http"

	"github.com/platinummonkey/axle/pkg/httputil"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plans"
)

// EntitlementMiddleware gates routes on plan-mapped features.
//
// Must run after AuthMiddleware: the decision is made against the plan
// snapshotted on the request principal. metrics may be nil.
type EntitlementMiddleware struct {
	metrics *observability.Metrics
}

// NewEntitlementMiddleware creates a new entitlement middleware.
func NewEntitlementMiddleware(metrics *observability.Metrics) *EntitlementMiddleware {
	return &EntitlementMiddleware{metrics: metrics}
}

// RequireFeature rejects callers whose plan does not include the feature.
// Denials are a decision, not an error: they return 402 with the upgrade
// hint and leave no other trace than the counters.
func (m *EntitlementMiddleware) RequireFeature(feature plans.Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			minPlan, ok := plans.MinPlanFor(feature)
			if !ok {
				httputil.WriteInternalError(w, fmt.Errorf("unknown feature %q", feature))
				return
			}

			if !plans.Allows(principal.Plan, feature) {
				m.countCheck(feature, "denied")
				if m.metrics != nil {
					m.metrics.EntitlementDenialsTotal.WithLabelValues(string(feature)).Inc()
				}
				httputil.WritePaymentRequired(w, fmt.Sprintf("%s requires %s plan or higher", feature, minPlan))
				return
			}

			m.countCheck(feature, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

func (m *EntitlementMiddleware) countCheck(feature plans.Feature, decision string) {
	if m.metrics != nil {
		m.metrics.EntitlementChecksTotal.WithLabelValues(string(feature), decision).Inc()
	}
}
