// Package storage provides the persistence layer for the Axle billing backend.
//
// # Overview
//
// This package and its postgres subpackage manage the three external stores
// the service depends on:
//
//   - PostgreSQL: organizations, users, API tokens, subscriptions, the
//     billing_events idempotency ledger, and daily billing stats.
//   - Redis: counters backing the distributed rate limiter (optional).
//   - S3: archive of raw webhook payloads (optional).
//
// Domain services (pkg/orgs, pkg/billing, pkg/auth, pkg/reports) own their
// own SQL and receive *sql.DB handles; this package only provides
// connections, schema bootstrap, and driver-level helpers.
//
// # Configuration
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://localhost/axle?sslmode=disable"
//	cfg.PostgresReplicaURLs = "postgres://replica1/axle,postgres://replica2/axle"
//
// # Connections
//
// postgres.ConnectionManager maintains the primary connection and a
// round-robin pool of read replicas:
//
//	cm, err := postgres.NewConnectionManager(postgres.FromStorageConfig(cfg))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cm.Close()
//
//	writes := cm.Primary()
//	reads := cm.Replica() // falls back to primary when no replicas are configured
//
// # Schema
//
// postgres.RunMigrations applies versioned DDL migrations, tracked in the
// axle_migrations table so each version runs exactly once:
//
//	if err := postgres.RunMigrations(ctx, cm.Primary()); err != nil {
//		log.Fatal(err)
//	}
//
// # Unique violations
//
// Duplicate slugs, duplicate per-org emails, and replayed idempotency keys
// all surface as unique constraint violations. IsUniqueViolation recognizes
// the Postgres SQLSTATE (23505) and the sqlite message used in tests, so
// conflict handling behaves identically in both environments:
//
//	if storage.IsUniqueViolation(err) {
//		// map to a 409 or degrade to a duplicate response
//	}
package storage
