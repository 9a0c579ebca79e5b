// Package plans defines the billing plan catalog and the entitlement rules
// derived from it.
//
// The catalog is fixed at compile time: three plans ordered by rank, a set of
// per-plan resource limits, and a map of gated features to the minimum plan
// that unlocks them. All lookups are total functions: unknown plans or
// features return zero values and false rather than panicking, so callers on
// request paths can gate directly on the result.
package plans
