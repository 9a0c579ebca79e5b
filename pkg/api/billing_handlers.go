package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/axle/pkg/billing"
	"github.com/platinummonkey/axle/pkg/httputil"
	"github.com/platinummonkey/axle/pkg/middleware"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plans"
)

// Webhook headers sent by the billing provider.
const (
	headerStripeEventID   = "X-Stripe-Event-Id"
	headerStripeSignature = "X-Stripe-Signature"
)

// BillingHandlers handles webhook ingestion and subscription requests
type BillingHandlers struct {
	billingService billing.Service
	metrics        *observability.Metrics
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(billingService billing.Service, metrics *observability.Metrics) *BillingHandlers {
	return &BillingHandlers{
		billingService: billingService,
		metrics:        metrics,
	}
}

// RegisterPublicRoutes registers the webhook endpoint. Provider deliveries
// authenticate with an HMAC signature, not a bearer token.
func (h *BillingHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/billing/webhooks/stripe", h.HandleWebhook).Methods("POST")
}

// RegisterProtectedRoutes registers the authenticated billing routes
func (h *BillingHandlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/billing/plans", h.ListPlans).Methods("GET")
	router.HandleFunc("/billing/subscription", h.UpdateSubscription).Methods("PATCH")
}

// HandleWebhook handles POST /billing/webhooks/stripe. The raw body bytes
// feed signature verification, so nothing may decode them first.
func (h *BillingHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	signature := r.Header.Get(headerStripeSignature)
	eventID := r.Header.Get(headerStripeEventID)

	start := time.Now()
	result, err := h.billingService.ProcessWebhook(r.Context(), payload, signature, eventID)
	if err != nil {
		h.rejectWebhook(w, err)
		return
	}

	h.metrics.WebhooksReceivedTotal.WithLabelValues(result.EventType).Inc()
	h.metrics.WebhookProcessingDuration.WithLabelValues(result.EventType).Observe(time.Since(start).Seconds())

	if result.Status == billing.WebhookStatusDuplicate {
		h.metrics.WebhooksDuplicateTotal.WithLabelValues(result.EventType).Inc()
		httputil.WriteSuccess(w, map[string]interface{}{
			"status":          result.Status,
			"idempotency_key": result.IdempotencyKey,
			"event_type":      result.EventType,
		})
		return
	}

	if result.Updated {
		h.metrics.SubscriptionEventsAppliedTotal.WithLabelValues(result.EventType).Inc()
	} else {
		h.metrics.SubscriptionEventsIgnoredTotal.WithLabelValues("unmatched").Inc()
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"status":               result.Status,
		"idempotency_key":      result.IdempotencyKey,
		"event_type":           result.EventType,
		"updated_subscription": result.Updated,
	})
}

// rejectWebhook maps gate failures to HTTP statuses. Rejected deliveries
// never reach the ledger.
func (h *BillingHandlers) rejectWebhook(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		h.metrics.WebhooksRejectedTotal.WithLabelValues("invalid_signature").Inc()
		httputil.WriteUnauthorized(w, "invalid webhook signature")
	case errors.Is(err, billing.ErrMissingIdempotencyKey):
		h.metrics.WebhooksRejectedTotal.WithLabelValues("missing_idempotency_key").Inc()
		httputil.WriteBadRequest(w, "missing idempotency key")
	case errors.Is(err, billing.ErrInvalidPayload):
		h.metrics.WebhooksRejectedTotal.WithLabelValues("invalid_payload").Inc()
		httputil.WriteBadRequest(w, "invalid webhook payload")
	default:
		h.metrics.WebhooksRejectedTotal.WithLabelValues("internal_error").Inc()
		httputil.WriteInternalError(w, err)
	}
}

// planEntry is one row of the plan catalog listing.
type planEntry struct {
	Name     plans.Plan      `json:"name"`
	Rank     int             `json:"rank"`
	Limits   plans.Limits    `json:"limits"`
	Features []plans.Feature `json:"features"`
}

// ListPlans handles GET /billing/plans
func (h *BillingHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	catalog := plans.All()
	entries := make([]planEntry, 0, len(catalog))
	for _, p := range catalog {
		limits, _ := plans.LimitsFor(p)
		entries = append(entries, planEntry{
			Name:     p,
			Rank:     plans.Rank(p),
			Limits:   limits,
			Features: plans.FeaturesFor(p),
		})
	}

	httputil.WriteSuccess(w, map[string]interface{}{"plans": entries})
}

// UpdateSubscription handles PATCH /billing/subscription. This is the
// administrative override: values bypass event normalization and must
// already be canonical enum members.
func (h *BillingHandlers) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Plan   string `json:"plan"`
		Status string `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Plan, "plan") {
		return
	}
	// A plan-only patch activates the subscription.
	if req.Status == "" {
		req.Status = string(billing.StatusActive)
	}

	plan := plans.Plan(req.Plan)
	status := billing.Status(req.Status)
	subscription, err := h.billingService.OverrideSubscription(r.Context(), principal.OrganizationID, billing.SubscriptionPatch{
		Plan:   &plan,
		Status: &status,
	})
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPlan) || errors.Is(err, billing.ErrInvalidStatus) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, subscription)
}
