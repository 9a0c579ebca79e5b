package reports

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/axle/pkg/async"
	"github.com/platinummonkey/axle/pkg/observability"
)

// Aggregator computes daily billing rollups and runs storage maintenance.
// Its SQL targets PostgreSQL; it is driven by cmd/axle-aggregator and the
// in-process gauge refresher, never by request handlers.
type Aggregator struct {
	db *sql.DB
}

// NewAggregator creates a new aggregator.
func NewAggregator(db *sql.DB) *Aggregator {
	return &Aggregator{db: db}
}

// AggregateBillingStatsDaily recomputes one day's rollup row from the
// webhook ledger. Re-running a day overwrites the previous rollup, so the
// job is safe to repeat. The subscription columns are a point-in-time
// census taken when the rollup runs, not a reconstruction of that day's
// plan mix.
func (a *Aggregator) AggregateBillingStatsDaily(ctx context.Context, date time.Time) error {
	query := `
		INSERT INTO billing_stats_daily (
			date,
			events_received, events_duplicate, events_applied,
			orgs_active, subs_starter, subs_growth, subs_enterprise,
			updated_at
		)
		SELECT
			$1::date AS date,
			COALESCE(COUNT(e.id), 0) AS events_received,
			0 AS events_duplicate, -- TODO: journal replay deliveries; only the Prometheus counter sees them today
			COALESCE(COUNT(e.organization_id), 0) AS events_applied,
			COALESCE(COUNT(DISTINCT e.organization_id), 0) AS orgs_active,
			(SELECT COUNT(*) FROM subscriptions WHERE plan = 'starter') AS subs_starter,
			(SELECT COUNT(*) FROM subscriptions WHERE plan = 'growth') AS subs_growth,
			(SELECT COUNT(*) FROM subscriptions WHERE plan = 'enterprise') AS subs_enterprise,
			NOW() AS updated_at
		FROM billing_events e
		WHERE e.received_at >= $1::date
		  AND e.received_at < $1::date + INTERVAL '1 day'
		ON CONFLICT (date) DO UPDATE SET
			events_received = EXCLUDED.events_received,
			events_duplicate = EXCLUDED.events_duplicate,
			events_applied = EXCLUDED.events_applied,
			orgs_active = EXCLUDED.orgs_active,
			subs_starter = EXCLUDED.subs_starter,
			subs_growth = EXCLUDED.subs_growth,
			subs_enterprise = EXCLUDED.subs_enterprise,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := a.db.ExecContext(ctx, query, date); err != nil {
		return fmt.Errorf("failed to aggregate billing stats for %s: %w", date.Format("2006-01-02"), err)
	}
	return nil
}

// Backfill recomputes daily rollups for every date in [from, to]. Days are
// independent, so they fan out across workers; the returned slice carries
// one error per failed day.
func (a *Aggregator) Backfill(ctx context.Context, from, to time.Time, workers int) []error {
	var dates []time.Time
	for d := startOfDay(from); !d.After(startOfDay(to)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return async.Batch(ctx, dates, workers, "billing stats backfill", time.Minute,
		func(ctx context.Context, date time.Time) error {
			return a.AggregateBillingStatsDaily(ctx, date)
		})
}

// PurgeRevokedTokens deletes token rows revoked earlier than olderThan ago
// and reports how many were removed. Active tokens are never touched.
func (a *Aggregator) PurgeRevokedTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE revoked_at IS NOT NULL AND revoked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged tokens: %w", err)
	}
	return purged, nil
}

// PlanStatusCount is one cell of the subscription census.
type PlanStatusCount struct {
	Plan   string
	Status string
	Count  int64
}

// SubscriptionCountsByPlan returns the current subscription census grouped
// by plan and status.
func (a *Aggregator) SubscriptionCountsByPlan(ctx context.Context) ([]PlanStatusCount, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT plan, status, COUNT(*) FROM subscriptions GROUP BY plan, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	defer rows.Close()

	var counts []PlanStatusCount
	for rows.Next() {
		var c PlanStatusCount
		if err := rows.Scan(&c.Plan, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan subscription count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscription counts: %w", err)
	}
	return counts, nil
}

// RefreshSubscriptionGauges publishes the census into the subscriptions
// gauge. The gauge is reset first so plan/status combinations that emptied
// out since the last refresh don't linger.
func (a *Aggregator) RefreshSubscriptionGauges(ctx context.Context, metrics *observability.Metrics) error {
	counts, err := a.SubscriptionCountsByPlan(ctx)
	if err != nil {
		return err
	}
	metrics.SubscriptionsByPlan.Reset()
	for _, c := range counts {
		metrics.SubscriptionsByPlan.WithLabelValues(c.Plan, c.Status).Set(float64(c.Count))
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
