package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/axle/pkg/httputil"
	"github.com/platinummonkey/axle/pkg/middleware"
	"github.com/platinummonkey/axle/pkg/plans"
	"github.com/platinummonkey/axle/pkg/reports"
)

// ReportHandlers serves plan-gated analytics reports
type ReportHandlers struct {
	entitlements *middleware.EntitlementMiddleware
}

// NewReportHandlers creates a new ReportHandlers
func NewReportHandlers(entitlements *middleware.EntitlementMiddleware) *ReportHandlers {
	return &ReportHandlers{entitlements: entitlements}
}

// RegisterRoutes registers report routes. The advanced report sits behind
// the entitlement gate, so callers below the growth plan are denied before
// the handler runs.
func (h *ReportHandlers) RegisterRoutes(router *mux.Router) {
	gate := h.entitlements.RequireFeature(plans.FeatureAdvancedAnalytics)
	router.Handle("/reports/advanced", gate(http.HandlerFunc(h.AdvancedReport))).Methods("GET")
}

// AdvancedReport handles GET /reports/advanced
func (h *ReportHandlers) AdvancedReport(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"organization": principal.OrganizationSlug,
		"kpis":         reports.KPIsFor(principal.OrganizationSlug),
	})
}
