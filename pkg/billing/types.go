package billing

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/axle/pkg/plans"
)

// Status is a canonical subscription lifecycle state. Provider payloads
// carry a wider vocabulary; NormalizeStatus collapses it onto this set
// before anything is persisted.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// IsValidStatus reports whether s is one of the canonical states.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusTrialing, StatusActive, StatusCanceled:
		return true
	}
	return false
}

// Webhook delivery outcomes reported to the caller.
const (
	WebhookStatusProcessed = "processed"
	WebhookStatusDuplicate = "duplicate"
)

var (
	// ErrInvalidSignature means the delivery failed HMAC verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMissingIdempotencyKey means neither the event header nor the
	// payload carried an event ID.
	ErrMissingIdempotencyKey = errors.New("missing idempotency key")
	// ErrInvalidPayload means the request body was not a decodable event.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrInvalidPlan rejects an override with a plan outside the catalog.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrInvalidStatus rejects an override with a non-canonical status.
	ErrInvalidStatus = errors.New("invalid subscription status")
)

// Subscription is an organization's billing state. Every organization has
// at most one row; reads materialize a starter/trialing default when none
// exists yet.
type Subscription struct {
	ID                   int64      `json:"id"`
	OrganizationID       int64      `json:"organization_id"`
	Plan                 plans.Plan `json:"plan"`
	Status               Status     `json:"status"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// BillingEvent is one row of the webhook ledger. The idempotency key is
// unique; replays are answered from this record without touching
// subscription state.
type BillingEvent struct {
	ID             int64     `json:"id"`
	IdempotencyKey string    `json:"idempotency_key"`
	EventType      string    `json:"event_type"`
	OrganizationID *int64    `json:"organization_id,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// SubscriptionPatch is a sparse subscription update. Nil fields leave the
// stored value untouched, so an event that omits a field can never erase
// state written by an earlier one.
type SubscriptionPatch struct {
	Plan            *plans.Plan
	Status          *Status
	CustomerRef     *string
	SubscriptionRef *string
	PeriodEnd       *time.Time
}

// Apply merges the patch into sub, field by field.
func (p SubscriptionPatch) Apply(sub *Subscription) {
	if p.Plan != nil {
		sub.Plan = *p.Plan
	}
	if p.Status != nil {
		sub.Status = *p.Status
	}
	if p.CustomerRef != nil {
		sub.StripeCustomerID = *p.CustomerRef
	}
	if p.SubscriptionRef != nil {
		sub.StripeSubscriptionID = *p.SubscriptionRef
	}
	if p.PeriodEnd != nil {
		sub.CurrentPeriodEnd = p.PeriodEnd
	}
}

// IsZero reports whether the patch carries no field updates.
func (p SubscriptionPatch) IsZero() bool {
	return p.Plan == nil && p.Status == nil && p.CustomerRef == nil &&
		p.SubscriptionRef == nil && p.PeriodEnd == nil
}

// WebhookEvent is the decoded, untrusted event envelope. Only the fields
// the reconciler reads are declared; everything else in the payload is
// preserved verbatim in the ledger.
type WebhookEvent struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

// WebhookData wraps the provider's nested object.
type WebhookData struct {
	Object WebhookObject `json:"object"`
}

// WebhookObject is the subscription object inside a recognized event.
// CurrentPeriodEnd stays untyped because providers have shipped strings
// and fractional numbers there; only integer epoch seconds are honored.
type WebhookObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	PlanName         string            `json:"plan_name"`
	Plan             *WebhookPlanInfo  `json:"plan"`
	Metadata         map[string]string `json:"metadata"`
	CurrentPeriodEnd interface{}       `json:"current_period_end"`
}

// WebhookPlanInfo carries the display name of the provider-side plan.
type WebhookPlanInfo struct {
	Nickname string `json:"nickname"`
}

// WebhookResult is the terminal state of one webhook delivery.
type WebhookResult struct {
	Status         string
	IdempotencyKey string
	// EventType is the ledger row's recorded type. For a duplicate it
	// comes from the original delivery, not the replay.
	EventType string
	// Updated reports that a recognized event for a known tenant was
	// applied. It does not imply any field changed value.
	Updated bool
	// Subscription is the post-reconciliation record when Updated is set.
	Subscription *Subscription
	// OrganizationID is the resolved tenant, if any.
	OrganizationID *int64
}

// Service defines billing operations.
type Service interface {
	// ProcessWebhook verifies, deduplicates and applies one webhook
	// delivery. eventID is the value of the provider's event ID header
	// and may be empty, in which case the payload's own ID is used.
	ProcessWebhook(ctx context.Context, payload []byte, signature, eventID string) (*WebhookResult, error)

	// GetOrCreateSubscription returns the organization's subscription,
	// materializing the starter/trialing default on first read.
	GetOrCreateSubscription(ctx context.Context, orgID int64) (*Subscription, error)

	// OverrideSubscription applies an administrative patch directly.
	// Values bypass normalization and must already be canonical.
	OverrideSubscription(ctx context.Context, orgID int64, patch SubscriptionPatch) (*Subscription, error)
}
