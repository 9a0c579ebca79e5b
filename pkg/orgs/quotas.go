package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/axle/pkg/plans"
)

// GetSeatUsage reports member headcount against the plan's MaxUsers limit.
// Organizations without a subscription row count as starter, matching the
// lazy-create default everywhere else.
func (s *PostgresService) GetSeatUsage(ctx context.Context, orgID int64) (*SeatUsage, error) {
	plan, err := s.currentPlan(ctx, orgID)
	if err != nil {
		return nil, err
	}

	limits, ok := plans.LimitsFor(plan)
	if !ok {
		// A subscription row with an unrecognized plan never grants more
		// than the lowest tier.
		limits, _ = plans.LimitsFor(plans.PlanStarter)
	}

	var used int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE organization_id = $1`, orgID,
	).Scan(&used); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	return &SeatUsage{Used: used, Max: limits.MaxUsers}, nil
}

// currentPlan resolves the organization's plan for capacity decisions.
func (s *PostgresService) currentPlan(ctx context.Context, orgID int64) (plans.Plan, error) {
	var plan string
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(s.plan, 'starter')
		 FROM organizations o
		 LEFT JOIN subscriptions s ON s.organization_id = o.id
		 WHERE o.id = $1`,
		orgID,
	).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve plan: %w", err)
	}
	return plans.Plan(plan), nil
}
