// Package reports serves read-side analytics: the KPI snapshot behind the
// advanced-analytics entitlement, and the Aggregator that rolls the webhook
// ledger into billing_stats_daily, purges long-revoked tokens and feeds the
// subscription census gauges.
//
// The Aggregator's SQL is PostgreSQL-specific (date casts, ON CONFLICT
// upserts) and runs from cmd/axle-aggregator on cron schedules; cmd/axle
// only reuses the gauge refresher.
package reports
