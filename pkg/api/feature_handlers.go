package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/axle/pkg/httputil"
	"github.com/platinummonkey/axle/pkg/middleware"
	"github.com/platinummonkey/axle/pkg/plans"
)

// FeatureHandlers answers entitlement lookups against the plan catalog.
// The catalog is static, so these handlers hold no dependencies.
type FeatureHandlers struct{}

// NewFeatureHandlers creates a new FeatureHandlers
func NewFeatureHandlers() *FeatureHandlers {
	return &FeatureHandlers{}
}

// RegisterRoutes registers feature routes
func (h *FeatureHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/features/{feature}", h.CheckFeature).Methods("GET")
}

// CheckFeature handles GET /features/{feature}. The answer is advisory;
// enforcement happens at the gated endpoints themselves.
func (h *FeatureHandlers) CheckFeature(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	feature := plans.Feature(mux.Vars(r)["feature"])
	if !plans.IsValidFeature(feature) {
		httputil.WriteNotFoundError(w, fmt.Sprintf("unknown feature %q", feature))
		return
	}

	requiredPlan, _ := plans.MinPlanFor(feature)
	httputil.WriteSuccess(w, map[string]interface{}{
		"feature":       feature,
		"plan":          principal.Plan,
		"required_plan": requiredPlan,
		"allowed":       plans.Allows(principal.Plan, feature),
	})
}
