// Package middleware provides HTTP middleware for authentication, plan
// entitlement gating, and rate limiting.
//
// # Ordering
//
// The middleware have strict ordering dependencies. AuthMiddleware must
// run first on protected routes: it resolves the bearer token to a
// principal and stores it on the request context. RateLimitMiddleware and
// EntitlementMiddleware both read that principal; run before auth they
// see every caller as anonymous.
//
//	protected.Use(authMiddleware.Handler)      // 1. resolves the principal
//	protected.Use(rateLimitMiddleware.Handler) // 2. plan-tiered limits
//	reports.Handle("/reports/advanced",
//	    entitlement.RequireFeature(plans.FeatureAdvancedAnalytics)(handler))
//
// # Rate Limiting
//
// Authenticated callers are keyed by token ID and limited by their plan
// tier; anonymous callers are keyed by client IP under the default limit.
// Tiers come from DefaultRules, optionally overridden by a YAML rules
// file (LoadRules); WatchRules reapplies the file on edit via SetRules.
// With a Redis client configured the counters are shared across
// instances; on Redis errors the middleware falls back to its in-memory
// buckets. Buckets and counters are caches, never sources of truth.
//
// # Related Packages
//
//   - pkg/auth: token resolution
//   - pkg/plans: feature-to-plan mapping
package middleware
