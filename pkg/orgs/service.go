package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/platinummonkey/axle/pkg/auth"
	"github.com/platinummonkey/axle/pkg/storage"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db        *sql.DB
	generator *auth.TokenGenerator
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{
		db:        db,
		generator: auth.NewTokenGenerator(),
	}
}

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Register bootstraps a tenant in a single transaction: organization,
// admin user, starter/trialing subscription, and the first API token.
// Any failure rolls everything back; a duplicate slug never leaves a
// partial user or token row behind.
func (s *PostgresService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	name := strings.TrimSpace(req.OrgName)
	if name == "" {
		return nil, fmt.Errorf("organization name is required")
	}

	slug := strings.TrimSpace(req.OrgSlug)
	if slug == "" {
		slug = generateSlug(name)
	}
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	org := &Organization{Name: name, Slug: slug, CreatedAt: now}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO organizations (name, slug, created_at) VALUES ($1, $2, $3) RETURNING id`,
		org.Name, org.Slug, org.CreatedAt,
	).Scan(&org.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	user := &User{OrganizationID: org.ID, Email: email, FullName: strings.TrimSpace(req.FullName), CreatedAt: now}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (organization_id, email, full_name, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		user.OrganizationID, user.Email, user.FullName, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// New tenants start on the trial of the lowest plan; billing events or
	// an administrative override move them later.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (organization_id, plan, status, created_at, updated_at)
		 VALUES ($1, 'starter', 'trialing', $2, $3)`,
		org.ID, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	raw, hash, prefix, err := s.generator.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := &auth.APIToken{UserID: user.ID, TokenHash: hash, TokenPrefix: prefix, CreatedAt: now}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO api_tokens (user_id, token_hash, token_prefix, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		token.UserID, token.TokenHash, token.TokenPrefix, token.CreatedAt,
	).Scan(&token.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &RegisterResult{
		Organization: org,
		User:         user,
		IssuedToken:  &auth.IssuedToken{Token: token, Raw: raw},
	}, nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	return s.getOrganization(ctx, `SELECT id, name, slug, created_at FROM organizations WHERE id = $1`, id)
}

// GetOrganizationBySlug retrieves an organization by slug. Webhook
// reconciliation uses this for tenant resolution.
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.getOrganization(ctx, `SELECT id, name, slug, created_at FROM organizations WHERE slug = $1`, slug)
}

func (s *PostgresService) getOrganization(ctx context.Context, query string, arg interface{}) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// generateSlug derives a URL-safe slug from an organization name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
