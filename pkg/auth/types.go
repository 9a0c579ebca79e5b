package auth

import (
	"errors"
	"time"

	"github.com/platinummonkey/axle/pkg/plans"
)

// Sentinel errors returned by token resolution and rotation.
var (
	// ErrInvalidToken indicates the presented credential is malformed,
	// unknown, or revoked. Callers map it to 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenNotFound indicates a rotation target that does not exist or
	// does not belong to the caller.
	ErrTokenNotFound = errors.New("token not found")
)

// APIToken represents a stored API token. The raw secret is never
// persisted; only its SHA256 hash and a short display prefix are kept.
type APIToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"` // Never expose hash
	TokenPrefix string     `json:"token_prefix"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// IssuedToken pairs a stored token record with its raw secret. The raw
// value is returned exactly once, at issuance, and never again.
type IssuedToken struct {
	Token *APIToken `json:"token"`
	Raw   string    `json:"access_token"`
}

// Principal is the resolved identity behind a bearer token: the user, the
// organization they belong to, and the organization's current plan. It is
// what the auth middleware attaches to the request context.
type Principal struct {
	UserID           int64  `json:"user_id"`
	Email            string `json:"email"`
	OrganizationID   int64  `json:"organization_id"`
	OrganizationSlug string `json:"organization_slug"`
	TokenID          int64  `json:"token_id"`
	TokenPrefix      string `json:"token_prefix"`

	// Entitlement inputs, snapshotted at resolution time.
	Plan               plans.Plan `json:"plan"`
	SubscriptionStatus string     `json:"subscription_status"`
}
