package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/billing"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plans"
)

// mockBillingService implements billing.Service for testing
type mockBillingService struct {
	processWebhookFunc          func(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error)
	getOrCreateSubscriptionFunc func(ctx context.Context, orgID int64) (*billing.Subscription, error)
	overrideSubscriptionFunc    func(ctx context.Context, orgID int64, patch billing.SubscriptionPatch) (*billing.Subscription, error)
}

func (m *mockBillingService) ProcessWebhook(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error) {
	if m.processWebhookFunc != nil {
		return m.processWebhookFunc(ctx, payload, signature, eventID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockBillingService) GetOrCreateSubscription(ctx context.Context, orgID int64) (*billing.Subscription, error) {
	if m.getOrCreateSubscriptionFunc != nil {
		return m.getOrCreateSubscriptionFunc(ctx, orgID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockBillingService) OverrideSubscription(ctx context.Context, orgID int64, patch billing.SubscriptionPatch) (*billing.Subscription, error) {
	if m.overrideSubscriptionFunc != nil {
		return m.overrideSubscriptionFunc(ctx, orgID, patch)
	}
	return nil, errors.New("not implemented")
}

func starterSubscription(orgID int64) *billing.Subscription {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &billing.Subscription{
		ID:             1,
		OrganizationID: orgID,
		Plan:           plans.PlanStarter,
		Status:         billing.StatusTrialing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

// TestNewBillingHandlers verifies handler initialization
func TestNewBillingHandlers(t *testing.T) {
	handlers := NewBillingHandlers(&mockBillingService{}, newTestMetrics())

	assert.NotNil(t, handlers)
	assert.NotNil(t, handlers.billingService)
	assert.NotNil(t, handlers.metrics)
}

// TestBillingHandlers_RegisterRoutes verifies all routes are registered
func TestBillingHandlers_RegisterRoutes(t *testing.T) {
	handlers := NewBillingHandlers(&mockBillingService{}, newTestMetrics())
	router := mux.NewRouter()
	handlers.RegisterPublicRoutes(router)
	handlers.RegisterProtectedRoutes(router)

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/billing/webhooks/stripe"},
		{"GET", "/billing/plans"},
		{"PATCH", "/billing/subscription"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			assert.True(t, router.Match(req, &match), "Route %s %s should be registered", tt.method, tt.path)
		})
	}
}

// TestHandleWebhook_Processed tests a recognized event applied to a known tenant
func TestHandleWebhook_Processed(t *testing.T) {
	orgID := int64(3)
	sub := starterSubscription(orgID)
	sub.Plan = plans.PlanEnterprise
	sub.Status = billing.StatusActive

	billingService := &mockBillingService{
		processWebhookFunc: func(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error) {
			return &billing.WebhookResult{
				Status:         billing.WebhookStatusProcessed,
				IdempotencyKey: "evt_1",
				EventType:      "customer.subscription.updated",
				Updated:        true,
				Subscription:   sub,
				OrganizationID: &orgID,
			}, nil
		},
	}
	metrics := newTestMetrics()
	handlers := NewBillingHandlers(billingService, metrics)

	req := httptest.NewRequest("POST", "/billing/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	w := httptest.NewRecorder()

	handlers.HandleWebhook(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "processed", body["status"])
	assert.Equal(t, "evt_1", body["idempotency_key"])
	assert.Equal(t, "customer.subscription.updated", body["event_type"])
	assert.Equal(t, true, body["updated_subscription"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WebhooksReceivedTotal.WithLabelValues("customer.subscription.updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubscriptionEventsAppliedTotal.WithLabelValues("customer.subscription.updated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WebhooksDuplicateTotal.WithLabelValues("customer.subscription.updated")))
}

// TestHandleWebhook_UnmatchedEvent tests an event the reconciler could not
// apply. The delivery is still acknowledged so the provider stops retrying.
func TestHandleWebhook_UnmatchedEvent(t *testing.T) {
	billingService := &mockBillingService{
		processWebhookFunc: func(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error) {
			return &billing.WebhookResult{
				Status:         billing.WebhookStatusProcessed,
				IdempotencyKey: "evt_2",
				EventType:      "invoice.paid",
				Updated:        false,
			}, nil
		},
	}
	metrics := newTestMetrics()
	handlers := NewBillingHandlers(billingService, metrics)

	req := httptest.NewRequest("POST", "/billing/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_2"}`))
	w := httptest.NewRecorder()

	handlers.HandleWebhook(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "processed", body["status"])
	assert.Equal(t, false, body["updated_subscription"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubscriptionEventsIgnoredTotal.WithLabelValues("unmatched")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SubscriptionEventsAppliedTotal.WithLabelValues("invoice.paid")))
}

// TestHandleWebhook_Duplicate tests a replayed delivery
func TestHandleWebhook_Duplicate(t *testing.T) {
	billingService := &mockBillingService{
		processWebhookFunc: func(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error) {
			return &billing.WebhookResult{
				Status:         billing.WebhookStatusDuplicate,
				IdempotencyKey: "evt_1",
				EventType:      "customer.subscription.updated",
			}, nil
		},
	}
	metrics := newTestMetrics()
	handlers := NewBillingHandlers(billingService, metrics)

	req := httptest.NewRequest("POST", "/billing/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	w := httptest.NewRecorder()

	handlers.HandleWebhook(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "duplicate", body["status"])
	assert.Equal(t, "evt_1", body["idempotency_key"])
	assert.NotContains(t, body, "updated_subscription")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WebhooksDuplicateTotal.WithLabelValues("customer.subscription.updated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SubscriptionEventsAppliedTotal.WithLabelValues("customer.subscription.updated")))
}

// TestHandleWebhook_GateFailures tests the rejection mapping. A rejected
// delivery never increments the received counter.
func TestHandleWebhook_GateFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"invalid signature", billing.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{"missing idempotency key", billing.ErrMissingIdempotencyKey, http.StatusBadRequest, "missing_idempotency_key"},
		{"invalid payload", billing.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
		{"storage failure", errors.New("driver: bad connection"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billingService := &mockBillingService{
				processWebhookFunc: func(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error) {
					return nil, tt.err
				},
			}
			metrics := newTestMetrics()
			handlers := NewBillingHandlers(billingService, metrics)

			req := httptest.NewRequest("POST", "/billing/webhooks/stripe", bytes.NewBufferString(`{}`))
			w := httptest.NewRecorder()

			handlers.HandleWebhook(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WebhooksRejectedTotal.WithLabelValues(tt.wantReason)))
			assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WebhooksReceivedTotal.WithLabelValues("customer.subscription.updated")))
		})
	}
}

// TestHandleWebhook_ForwardsHeaders tests that the provider headers and the
// raw body reach the service untouched
func TestHandleWebhook_ForwardsHeaders(t *testing.T) {
	var gotPayload []byte
	var gotSignature, gotEventID string

	billingService := &mockBillingService{
		processWebhookFunc: func(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error) {
			gotPayload = payload
			gotSignature = signature
			gotEventID = eventID
			return &billing.WebhookResult{
				Status:         billing.WebhookStatusProcessed,
				IdempotencyKey: eventID,
				EventType:      "customer.subscription.updated",
			}, nil
		},
	}
	handlers := NewBillingHandlers(billingService, newTestMetrics())

	payload := `{"id":"evt_9","type":"customer.subscription.updated"}`
	req := httptest.NewRequest("POST", "/billing/webhooks/stripe", bytes.NewBufferString(payload))
	req.Header.Set("X-Stripe-Signature", "a1b2c3")
	req.Header.Set("X-Stripe-Event-Id", "evt_9")
	w := httptest.NewRecorder()

	handlers.HandleWebhook(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, string(gotPayload))
	assert.Equal(t, "a1b2c3", gotSignature)
	assert.Equal(t, "evt_9", gotEventID)
}

// TestListPlans tests the catalog listing
func TestListPlans(t *testing.T) {
	handlers := NewBillingHandlers(&mockBillingService{}, newTestMetrics())

	req := httptest.NewRequest("GET", "/billing/plans", nil)
	w := httptest.NewRecorder()

	handlers.ListPlans(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Plans []struct {
			Name     string       `json:"name"`
			Rank     int          `json:"rank"`
			Limits   plans.Limits `json:"limits"`
			Features []string     `json:"features"`
		} `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	require.Len(t, body.Plans, 3)
	assert.Equal(t, "starter", body.Plans[0].Name)
	assert.Equal(t, 1, body.Plans[0].Rank)
	assert.Equal(t, "growth", body.Plans[1].Name)
	assert.Equal(t, 2, body.Plans[1].Rank)
	assert.Equal(t, "enterprise", body.Plans[2].Name)
	assert.Equal(t, 3, body.Plans[2].Rank)

	assert.Equal(t, plans.Limits{MaxUsers: 5, MaxProjects: 10}, body.Plans[0].Limits)
	assert.Equal(t, plans.Limits{MaxUsers: 500, MaxProjects: 1000}, body.Plans[2].Limits)

	assert.Len(t, body.Plans[0].Features, 2)
	assert.Len(t, body.Plans[2].Features, 6)
	assert.Contains(t, body.Plans[2].Features, "sso")
}

// TestUpdateSubscription_DefaultsToActive tests that a plan-only patch
// activates the subscription
func TestUpdateSubscription_DefaultsToActive(t *testing.T) {
	var gotOrgID int64
	var gotPatch billing.SubscriptionPatch

	billingService := &mockBillingService{
		overrideSubscriptionFunc: func(ctx context.Context, orgID int64, patch billing.SubscriptionPatch) (*billing.Subscription, error) {
			gotOrgID = orgID
			gotPatch = patch
			sub := starterSubscription(orgID)
			patch.Apply(sub)
			return sub, nil
		},
	}
	handlers := NewBillingHandlers(billingService, newTestMetrics())

	reqBody, _ := json.Marshal(map[string]string{"plan": "growth"})
	req := withPrincipal(httptest.NewRequest("PATCH", "/billing/subscription", bytes.NewBuffer(reqBody)), testPrincipal())
	w := httptest.NewRecorder()

	handlers.UpdateSubscription(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), gotOrgID)
	require.NotNil(t, gotPatch.Plan)
	require.NotNil(t, gotPatch.Status)
	assert.Equal(t, plans.PlanGrowth, *gotPatch.Plan)
	assert.Equal(t, billing.StatusActive, *gotPatch.Status)

	body := decodeBody(t, w)
	assert.Equal(t, "growth", body["plan"])
	assert.Equal(t, "active", body["status"])
}

// TestUpdateSubscription_ExplicitStatus tests that a provided status is honored
func TestUpdateSubscription_ExplicitStatus(t *testing.T) {
	var gotPatch billing.SubscriptionPatch

	billingService := &mockBillingService{
		overrideSubscriptionFunc: func(ctx context.Context, orgID int64, patch billing.SubscriptionPatch) (*billing.Subscription, error) {
			gotPatch = patch
			sub := starterSubscription(orgID)
			patch.Apply(sub)
			return sub, nil
		},
	}
	handlers := NewBillingHandlers(billingService, newTestMetrics())

	reqBody, _ := json.Marshal(map[string]string{"plan": "enterprise", "status": "canceled"})
	req := withPrincipal(httptest.NewRequest("PATCH", "/billing/subscription", bytes.NewBuffer(reqBody)), testPrincipal())
	w := httptest.NewRecorder()

	handlers.UpdateSubscription(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotPatch.Status)
	assert.Equal(t, billing.StatusCanceled, *gotPatch.Status)
}

// TestUpdateSubscription_ValidationFailures tests rejection of non-catalog values
func TestUpdateSubscription_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unknown plan", billing.ErrInvalidPlan},
		{"unknown status", billing.ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billingService := &mockBillingService{
				overrideSubscriptionFunc: func(ctx context.Context, orgID int64, patch billing.SubscriptionPatch) (*billing.Subscription, error) {
					return nil, tt.err
				},
			}
			handlers := NewBillingHandlers(billingService, newTestMetrics())

			reqBody, _ := json.Marshal(map[string]string{"plan": "platinum"})
			req := withPrincipal(httptest.NewRequest("PATCH", "/billing/subscription", bytes.NewBuffer(reqBody)), testPrincipal())
			w := httptest.NewRecorder()

			handlers.UpdateSubscription(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// TestUpdateSubscription_MissingPlan tests field presence checks
func TestUpdateSubscription_MissingPlan(t *testing.T) {
	handlers := NewBillingHandlers(&mockBillingService{}, newTestMetrics())

	reqBody, _ := json.Marshal(map[string]string{"status": "active"})
	req := withPrincipal(httptest.NewRequest("PATCH", "/billing/subscription", bytes.NewBuffer(reqBody)), testPrincipal())
	w := httptest.NewRecorder()

	handlers.UpdateSubscription(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "plan is required")
}

// TestUpdateSubscription_InvalidJSON tests with a malformed body
func TestUpdateSubscription_InvalidJSON(t *testing.T) {
	handlers := NewBillingHandlers(&mockBillingService{}, newTestMetrics())

	req := withPrincipal(httptest.NewRequest("PATCH", "/billing/subscription", bytes.NewBufferString("not json")), testPrincipal())
	w := httptest.NewRecorder()

	handlers.UpdateSubscription(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestUpdateSubscription_NoPrincipal tests the unauthenticated path
func TestUpdateSubscription_NoPrincipal(t *testing.T) {
	handlers := NewBillingHandlers(&mockBillingService{}, newTestMetrics())

	reqBody, _ := json.Marshal(map[string]string{"plan": "growth"})
	req := httptest.NewRequest("PATCH", "/billing/subscription", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()

	handlers.UpdateSubscription(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestUpdateSubscription_ServiceError tests service error handling
func TestUpdateSubscription_ServiceError(t *testing.T) {
	billingService := &mockBillingService{
		overrideSubscriptionFunc: func(ctx context.Context, orgID int64, patch billing.SubscriptionPatch) (*billing.Subscription, error) {
			return nil, errors.New("service error")
		},
	}
	handlers := NewBillingHandlers(billingService, newTestMetrics())

	reqBody, _ := json.Marshal(map[string]string{"plan": "growth"})
	req := withPrincipal(httptest.NewRequest("PATCH", "/billing/subscription", bytes.NewBuffer(reqBody)), testPrincipal())
	w := httptest.NewRecorder()

	handlers.UpdateSubscription(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// BenchmarkHandleWebhook benchmarks webhook handling end to end through the handler
func BenchmarkHandleWebhook(b *testing.B) {
	billingService := &mockBillingService{
		processWebhookFunc: func(ctx context.Context, payload []byte, signature, eventID string) (*billing.WebhookResult, error) {
			return &billing.WebhookResult{
				Status:         billing.WebhookStatusProcessed,
				IdempotencyKey: "evt_bench",
				EventType:      "customer.subscription.updated",
				Updated:        true,
			}, nil
		},
	}
	handlers := NewBillingHandlers(billingService, newTestMetrics())
	payload := []byte(`{"id":"evt_bench","type":"customer.subscription.updated"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("POST", "/billing/webhooks/stripe", bytes.NewBuffer(payload))
		w := httptest.NewRecorder()
		handlers.HandleWebhook(w, req)
	}
}

// BenchmarkListPlans benchmarks catalog listing
func BenchmarkListPlans(b *testing.B) {
	handlers := NewBillingHandlers(&mockBillingService{}, newTestMetrics())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/billing/plans", nil)
		w := httptest.NewRecorder()
		handlers.ListPlans(w, req)
	}
}
