// Package auth provides opaque API token management and principal
// resolution for the Axle backend.
//
// # Tokens
//
// Tokens are the only credential: axle_<base64url(32 random bytes)>,
// stored as a SHA256 hex hash plus a 12-character display prefix. The raw
// secret appears exactly once, in the IssuedToken returned at issuance,
// and is never persisted or logged.
//
//	generator := auth.NewTokenGenerator()
//	raw, hash, prefix, err := generator.GenerateToken()
//	// raw:    axle_xJ3f... (hand to the caller, display once)
//	// hash:   sha256(raw)  (store)
//	// prefix: raw[:12]     (safe for listings)
//
// # Principal resolution
//
// The middleware hands each bearer token to Service.ResolvePrincipal,
// which joins token -> user -> organization -> subscription and snapshots
// the plan and status used for entitlement checks:
//
//	principal, err := svc.ResolvePrincipal(ctx, rawToken)
//	if err != nil {
//		// auth.ErrInvalidToken covers malformed, unknown, and revoked
//		return
//	}
//	if plans.Allows(principal.Plan, plans.FeatureAdvancedAnalytics) { ... }
//
// Resolutions are cached in an expirable LRU keyed by token hash. The
// cache is never authoritative: entries expire on a short TTL and
// rotation evicts the old hash synchronously, so a rotated token stops
// working before the rotation response is sent.
//
// # Rotation
//
//	issued, err := svc.RotateToken(ctx, principal.TokenID, principal.UserID)
//	// old token revoked and issued.Raw live, in one transaction
//
// Registration-time issuance lives in pkg/orgs, which writes the first
// token inside its bootstrap transaction using this package's generator.
package auth
