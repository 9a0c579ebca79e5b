package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, email)
				);

				CREATE INDEX idx_users_organization_id ON users(organization_id);
			`,
		},
		{
			Version:     3,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(16) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP
				);

				CREATE INDEX idx_api_tokens_user_id ON api_tokens(user_id);
				CREATE INDEX idx_api_tokens_revoked_at ON api_tokens(revoked_at);
			`,
		},
		{
			Version:     4,
			Description: "Create subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL UNIQUE REFERENCES organizations(id) ON DELETE CASCADE,
					plan VARCHAR(50) NOT NULL DEFAULT 'starter',
					status VARCHAR(50) NOT NULL DEFAULT 'trialing',
					stripe_customer_id VARCHAR(255),
					stripe_subscription_id VARCHAR(255),
					current_period_end TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_subscriptions_plan ON subscriptions(plan);
				CREATE INDEX idx_subscriptions_status ON subscriptions(status);
			`,
		},
		{
			Version:     5,
			Description: "Create billing_events ledger table",
			SQL: `
				CREATE TABLE IF NOT EXISTS billing_events (
					id BIGSERIAL PRIMARY KEY,
					idempotency_key VARCHAR(255) NOT NULL UNIQUE,
					event_type VARCHAR(255) NOT NULL DEFAULT 'unknown',
					organization_id BIGINT REFERENCES organizations(id) ON DELETE SET NULL,
					payload JSONB,
					received_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_billing_events_organization_id ON billing_events(organization_id);
				CREATE INDEX idx_billing_events_event_type ON billing_events(event_type);
				CREATE INDEX idx_billing_events_received_at ON billing_events(received_at);
			`,
		},
		{
			Version:     6,
			Description: "Create billing_stats_daily table",
			SQL: `
				CREATE TABLE IF NOT EXISTS billing_stats_daily (
					date DATE PRIMARY KEY,
					events_received BIGINT NOT NULL DEFAULT 0,
					events_duplicate BIGINT NOT NULL DEFAULT 0,
					events_applied BIGINT NOT NULL DEFAULT 0,
					orgs_active BIGINT NOT NULL DEFAULT 0,
					subs_starter BIGINT NOT NULL DEFAULT 0,
					subs_growth BIGINT NOT NULL DEFAULT 0,
					subs_enterprise BIGINT NOT NULL DEFAULT 0,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS axle_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM axle_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	migrations := GetMigrations()
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			continue
		}

		fmt.Printf("Running migration %d: %s\n", migration.Version, migration.Description)

		// Start transaction
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		// Execute migration
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		// Record migration
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO axle_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		// Commit transaction
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		fmt.Printf("Migration %d completed successfully\n", migration.Version)
	}

	return nil
}
