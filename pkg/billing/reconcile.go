package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/platinummonkey/axle/pkg/orgs"
	"github.com/platinummonkey/axle/pkg/plans"
	"github.com/platinummonkey/axle/pkg/storage"
)

// recognizedEventTypes are the provider events that mutate subscription
// state. Everything else is recorded in the ledger and otherwise ignored.
var recognizedEventTypes = map[string]bool{
	"customer.subscription.created": true,
	"customer.subscription.updated": true,
	"customer.subscription.deleted": true,
}

// queryExecer is satisfied by both *sql.DB and *sql.Tx.
type queryExecer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// reconcile applies one decoded event to tenant state. It returns the
// updated subscription and the resolved organization ID, or (nil, nil) when
// the event is unrecognized or names no known tenant. Those deliveries are
// deliberate no-ops, not errors: the ledger still records them so replays
// stay idempotent.
func (s *PostgresService) reconcile(ctx context.Context, q queryExecer, event *WebhookEvent) (*Subscription, *int64, error) {
	if !recognizedEventTypes[event.Type] {
		return nil, nil, nil
	}

	slug := event.Data.Object.Metadata["organization_slug"]
	if slug == "" {
		return nil, nil, nil
	}
	org, err := s.orgService.GetOrganizationBySlug(ctx, slug)
	if errors.Is(err, orgs.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve organization %q: %w", slug, err)
	}

	sub, err := s.getOrCreateSubscription(ctx, q, org.ID)
	if err != nil {
		return nil, nil, err
	}

	patch := buildPatch(event)
	patch.Apply(sub)
	if err := s.persistSubscription(ctx, q, sub); err != nil {
		return nil, nil, err
	}

	return sub, &org.ID, nil
}

// buildPatch extracts the sparse field updates an event carries. Fields the
// payload omits, or carries in a form we cannot normalize, stay nil so the
// merge leaves stored state alone.
func buildPatch(event *WebhookEvent) SubscriptionPatch {
	object := event.Data.Object
	patch := SubscriptionPatch{}

	// The first non-empty plan source wins and must then normalize; an
	// unmappable nickname does not fall through to the metadata label.
	rawPlan := ""
	if object.Plan != nil {
		rawPlan = object.Plan.Nickname
	}
	if rawPlan == "" {
		rawPlan = object.Metadata["plan"]
	}
	if rawPlan == "" {
		rawPlan = object.PlanName
	}
	if plan, ok := NormalizePlan(rawPlan); ok {
		patch.Plan = &plan
	}

	if status, ok := NormalizeStatus(object.Status); ok {
		patch.Status = &status
	}

	if object.Customer != "" {
		customer := object.Customer
		patch.CustomerRef = &customer
	}
	if object.ID != "" {
		ref := object.ID
		patch.SubscriptionRef = &ref
	}
	if end, ok := epochSeconds(object.CurrentPeriodEnd); ok {
		patch.PeriodEnd = &end
	}

	return patch
}

// epochSeconds interprets a raw JSON value as integer epoch seconds. JSON
// numbers decode as float64; fractional values, strings and nulls are all
// rejected rather than rounded.
func epochSeconds(v interface{}) (time.Time, bool) {
	f, ok := v.(float64)
	if !ok {
		return time.Time{}, false
	}
	if f != math.Trunc(f) {
		return time.Time{}, false
	}
	return time.Unix(int64(f), 0).UTC(), true
}

// getOrCreateSubscription loads an organization's subscription row,
// inserting the starter/trialing default when none exists.
func (s *PostgresService) getOrCreateSubscription(ctx context.Context, q queryExecer, orgID int64) (*Subscription, error) {
	sub, err := s.fetchSubscription(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		return sub, nil
	}

	now := time.Now().UTC()
	sub = &Subscription{
		OrganizationID: orgID,
		Plan:           plans.PlanStarter,
		Status:         StatusTrialing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = q.QueryRowContext(ctx,
		`INSERT INTO subscriptions (organization_id, plan, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		orgID, sub.Plan, sub.Status, now, now,
	).Scan(&sub.ID)
	if err != nil {
		// Lost a concurrent create; the winner's row is authoritative.
		if storage.IsUniqueViolation(err) {
			return s.fetchSubscription(ctx, q, orgID)
		}
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// fetchSubscription loads the subscription row, or nil when none exists.
func (s *PostgresService) fetchSubscription(ctx context.Context, q queryExecer, orgID int64) (*Subscription, error) {
	sub := &Subscription{}
	var customerRef, subscriptionRef sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, organization_id, plan, status, stripe_customer_id, stripe_subscription_id,
		        current_period_end, created_at, updated_at
		 FROM subscriptions
		 WHERE organization_id = $1`,
		orgID,
	).Scan(&sub.ID, &sub.OrganizationID, &sub.Plan, &sub.Status, &customerRef,
		&subscriptionRef, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.StripeCustomerID = customerRef.String
	sub.StripeSubscriptionID = subscriptionRef.String
	return sub, nil
}

// persistSubscription writes the merged subscription back, bumping
// updated_at even when no field changed value.
func (s *PostgresService) persistSubscription(ctx context.Context, q queryExecer, sub *Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx,
		`UPDATE subscriptions
		 SET plan = $1, status = $2, stripe_customer_id = $3, stripe_subscription_id = $4,
		     current_period_end = $5, updated_at = $6
		 WHERE organization_id = $7`,
		sub.Plan, sub.Status, nullableRef(sub.StripeCustomerID), nullableRef(sub.StripeSubscriptionID),
		sub.CurrentPeriodEnd, sub.UpdatedAt, sub.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// nullableRef keeps absent provider refs NULL instead of empty strings.
func nullableRef(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
