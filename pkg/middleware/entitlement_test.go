package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/platinummonkey/axle/pkg/auth"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plans"
)

func TestRequireFeature(t *testing.T) {
	m := NewEntitlementMiddleware(nil)
	gate := m.RequireFeature(plans.FeatureAdvancedAnalytics)

	handlerCalled := false
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("denies plan below the feature", func(t *testing.T) {
		handlerCalled = false
		req := httptest.NewRequest(http.MethodGet, "/reports/advanced", nil)
		req = setPrincipalForTest(req, &auth.Principal{TokenID: 1, Plan: plans.PlanStarter})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusPaymentRequired {
			t.Errorf("expected 402, got %d", rec.Code)
		}
		if handlerCalled {
			t.Error("handler should not be called on denial")
		}
		body := rec.Body.String()
		if !strings.Contains(body, "advanced_analytics requires growth plan or higher") {
			t.Errorf("denial should carry the upgrade hint, got: %s", body)
		}
	})

	t.Run("allows the minimum plan", func(t *testing.T) {
		handlerCalled = false
		req := httptest.NewRequest(http.MethodGet, "/reports/advanced", nil)
		req = setPrincipalForTest(req, &auth.Principal{TokenID: 2, Plan: plans.PlanGrowth})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if !handlerCalled {
			t.Error("handler should be called when allowed")
		}
	})

	t.Run("allows higher plans", func(t *testing.T) {
		handlerCalled = false
		req := httptest.NewRequest(http.MethodGet, "/reports/advanced", nil)
		req = setPrincipalForTest(req, &auth.Principal{TokenID: 3, Plan: plans.PlanEnterprise})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("requires a principal", func(t *testing.T) {
		handlerCalled = false
		req := httptest.NewRequest(http.MethodGet, "/reports/advanced", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if handlerCalled {
			t.Error("handler should not be called without a principal")
		}
	})
}

func TestRequireFeature_Metrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	m := NewEntitlementMiddleware(metrics)
	handler := m.RequireFeature(plans.FeatureAdvancedAnalytics)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	send := func(plan plans.Plan) {
		req := httptest.NewRequest(http.MethodGet, "/reports/advanced", nil)
		req = setPrincipalForTest(req, &auth.Principal{TokenID: 1, Plan: plan})
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	send(plans.PlanStarter)
	send(plans.PlanStarter)
	send(plans.PlanGrowth)

	denied := testutil.ToFloat64(metrics.EntitlementChecksTotal.WithLabelValues("advanced_analytics", "denied"))
	if denied != 2 {
		t.Errorf("denied checks = %v, want 2", denied)
	}
	allowed := testutil.ToFloat64(metrics.EntitlementChecksTotal.WithLabelValues("advanced_analytics", "allowed"))
	if allowed != 1 {
		t.Errorf("allowed checks = %v, want 1", allowed)
	}
	denials := testutil.ToFloat64(metrics.EntitlementDenialsTotal.WithLabelValues("advanced_analytics"))
	if denials != 2 {
		t.Errorf("denials = %v, want 2", denials)
	}
}
