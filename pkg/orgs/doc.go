// Package orgs manages tenants: organizations, their members, and the
// registration bootstrap.
//
// # Registration
//
// Register creates a tenant atomically: organization, first (admin) user,
// starter/trialing subscription, and the first API token all commit in one
// transaction. A duplicate slug surfaces as ErrSlugTaken with nothing
// written; the raw token is only present on the returned RegisterResult.
//
//	result, err := svc.Register(ctx, &orgs.RegisterRequest{
//		OrgName: "Acme Corp",
//		OrgSlug: "acme",
//		Email:   "owner@acme.test",
//	})
//
// # Membership and seats
//
// CreateUser enforces the plan's MaxUsers ceiling from pkg/plans. The
// check reads current headcount and then inserts, so two concurrent
// creations can both pass it; seat overage is treated as a billing
// concern rather than a correctness one. At capacity the call returns a
// *CapacityError (check with IsCapacityExceeded), which handlers map to
// 403.
//
// # Tenant resolution
//
// GetOrganizationBySlug is how webhook reconciliation maps the
// organization_slug in event metadata onto a tenant. Unknown slugs return
// ErrNotFound, which the reconciler treats as a recorded no-op rather
// than a failure.
package orgs
