// Package api provides the HTTP REST API server for the axle billing and
// entitlement backend.
//
// # Overview
//
// This package implements the HTTP layer that exposes axle's functionality
// as RESTful endpoints: tenant registration, bearer-token lifecycle,
// organization membership, the plan catalog, subscription overrides,
// billing webhook ingestion, feature entitlement lookups, and plan-gated
// reports.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into domain-specific
// handler groups:
//
//   - AuthHandlers: registration bootstrap and token rotation
//   - OrgHandlers: the caller's organization and membership
//   - BillingHandlers: webhook ingestion, plan catalog, subscription override
//   - FeatureHandlers: entitlement lookups against the plan catalog
//   - ReportHandlers: plan-gated analytics reports
//
// Routes are split into two groups. Public routes (registration, webhooks)
// are rate limited by client IP. Protected routes run behind the auth
// middleware, which resolves the bearer token to a principal; the rate
// limiter then keys on the token and applies the caller's plan tier, and
// entitlement gates read the principal's plan.
//
// # API Endpoints
//
// Public:
//
//	POST   /auth/register              - Register organization + admin user
//	POST   /billing/webhooks/stripe    - Webhook ingestion (HMAC verified)
//
// Bearer-token authenticated:
//
//	POST   /auth/tokens/rotate         - Revoke current token, issue new one
//	GET    /organizations/me           - Caller's organization + subscription
//	GET    /organizations/me/users     - Member list with seat usage
//	POST   /organizations/me/users     - Add member (capacity checked)
//	GET    /billing/plans              - Plan catalog with limits and features
//	PATCH  /billing/subscription       - Administrative subscription override
//	GET    /features/{feature}         - Entitlement lookup
//	GET    /reports/advanced           - Advanced KPIs (growth plan or higher)
//
// Health and metrics endpoints are mounted by the binary outside this
// router so probes and scrapes bypass auth and rate limiting.
//
// # Usage Example
//
//	orgService := orgs.NewPostgresService(db)
//	billingService := billing.NewPostgresService(db, webhookSecret, orgService, nil)
//	authService := auth.NewPostgresService(db, 1024, 30*time.Second)
//
//	server := api.NewServer(orgService, billingService, authService, rateLimit, metrics)
//	http.ListenAndServe(":8080", server)
//
// # Design Decisions
//
// Tenancy From the Token: there are no organization IDs in URLs. Every
// protected handler reads the caller's organization from the resolved
// principal, which makes cross-tenant requests inexpressible rather than
// merely forbidden.
//
// Modular Handler Design: domain-specific handler groups register their
// own routes on the router they are handed. Handlers stay thin; they parse,
// delegate to a service, and map service errors to HTTP statuses.
//
// Denials Are Not Errors: entitlement denials (402) and capacity denials
// (403) are decisions. Conflicts (409) roll transactions back completely.
// Malformed input fails before anything is persisted.
//
// # Related Packages
//
//   - pkg/orgs: registration and membership
//   - pkg/billing: webhook gate, reconciler, subscription store
//   - pkg/auth: token issuance and principal resolution
//   - pkg/middleware: auth, rate limiting, entitlement gates
//   - pkg/plans: the plan/feature catalog
//   - pkg/reports: KPI snapshots and rollups
package api
