package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/axle/pkg/auth"
)

// Sentinel errors mapped to HTTP statuses at the handler boundary.
var (
	ErrNotFound     = errors.New("organization not found")
	ErrSlugTaken    = errors.New("organization slug already taken")
	ErrEmailTaken   = errors.New("email already registered in organization")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidSlug  = errors.New("invalid organization slug")
)

// Organization is a tenant. The slug is the external identifier used by
// webhook payloads and URLs; the numeric ID is internal.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// User belongs to exactly one organization. Email is unique per org, not
// globally.
type User struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RegisterRequest bootstraps a tenant: the organization, its first (admin)
// user, a starter/trialing subscription, and the first API token.
type RegisterRequest struct {
	OrgName  string `json:"org_name"`
	OrgSlug  string `json:"org_slug,omitempty"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// RegisterResult carries everything created by Register. IssuedToken.Raw
// is the only time the token secret is visible.
type RegisterResult struct {
	Organization *Organization     `json:"organization"`
	User         *User             `json:"user"`
	IssuedToken  *auth.IssuedToken `json:"issued_token"`
}

// SeatUsage reports member headcount against the plan ceiling.
type SeatUsage struct {
	Used int `json:"used"`
	Max  int `json:"max"`
}

// CapacityError is returned when adding a member would exceed the plan's
// MaxUsers limit.
type CapacityError struct {
	Limit   int
	Current int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("user capacity exceeded: %d of %d seats used", e.Current, e.Limit)
}

// IsCapacityExceeded checks if an error is a capacity error
func IsCapacityExceeded(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// Service defines the interface for organization and membership management
type Service interface {
	// Registration bootstrap
	Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error)

	// Tenant resolution
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)

	// Membership
	ListUsers(ctx context.Context, orgID int64) ([]*User, error)
	CreateUser(ctx context.Context, orgID int64, email, fullName string) (*User, error)
	GetSeatUsage(ctx context.Context, orgID int64) (*SeatUsage, error)
}
