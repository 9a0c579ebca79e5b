package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/axle/pkg/plans"
)

// Service resolves bearer tokens to principals and manages the token
// lifecycle after registration.
type Service interface {
	// IssueToken mints a new token for a user. The raw secret is only
	// present on the returned IssuedToken.
	IssueToken(ctx context.Context, userID int64) (*IssuedToken, error)

	// RotateToken revokes the given token and issues a replacement in a
	// single transaction. The old token stops working immediately.
	RotateToken(ctx context.Context, tokenID, userID int64) (*IssuedToken, error)

	// ResolvePrincipal maps a raw bearer token to the user, organization,
	// and subscription plan behind it.
	ResolvePrincipal(ctx context.Context, rawToken string) (*Principal, error)
}

// PostgresService implements Service backed by the relational store, with
// an expirable LRU cache in front of principal lookups. The cache is keyed
// by token hash and is never the source of truth: entries expire on a
// short TTL and are evicted on rotation. Concurrent misses for the same
// token collapse into a single query.
type PostgresService struct {
	db        *sql.DB
	generator *TokenGenerator
	cache     *expirable.LRU[string, *Principal]
	group     singleflight.Group
}

// NewPostgresService creates an auth service over the given database
// handle. cacheSize and cacheTTL bound the principal cache.
func NewPostgresService(db *sql.DB, cacheSize int, cacheTTL time.Duration) *PostgresService {
	return &PostgresService{
		db:        db,
		generator: NewTokenGenerator(),
		cache:     expirable.NewLRU[string, *Principal](cacheSize, nil, cacheTTL),
	}
}

// rowQueryer lets token inserts run against either *sql.DB or *sql.Tx.
type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// IssueToken mints and stores a new token for the user.
func (s *PostgresService) IssueToken(ctx context.Context, userID int64) (*IssuedToken, error) {
	return s.insertToken(ctx, s.db, userID)
}

// RotateToken revokes tokenID and issues a replacement. Both writes happen
// in one transaction so a failure leaves the old token usable.
func (s *PostgresService) RotateToken(ctx context.Context, tokenID, userID int64) (*IssuedToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldHash string
	err = tx.QueryRowContext(ctx,
		`SELECT token_hash FROM api_tokens WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		tokenID, userID,
	).Scan(&oldHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE id = $2`,
		time.Now().UTC(), tokenID,
	); err != nil {
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}

	issued, err := s.insertToken(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.cache.Remove(oldHash)
	return issued, nil
}

// ResolvePrincipal validates the token format, then resolves the principal
// from cache or storage. Unknown and revoked tokens both surface as
// ErrInvalidToken so callers cannot distinguish them.
func (s *PostgresService) ResolvePrincipal(ctx context.Context, rawToken string) (*Principal, error) {
	if err := s.generator.ValidateTokenFormat(rawToken); err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := s.generator.HashToken(rawToken)

	if principal, ok := s.cache.Get(tokenHash); ok {
		return principal, nil
	}

	v, err, _ := s.group.Do(tokenHash, func() (interface{}, error) {
		principal, err := s.lookupPrincipal(ctx, tokenHash)
		if err != nil {
			return nil, err
		}
		s.cache.Add(tokenHash, principal)
		return principal, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Principal), nil
}

func (s *PostgresService) lookupPrincipal(ctx context.Context, tokenHash string) (*Principal, error) {
	// Organizations without a subscription row resolve to the lazy-create
	// defaults so entitlement checks behave the same either way.
	query := `
		SELECT t.id, t.token_prefix, u.id, u.email, o.id, o.slug,
		       COALESCE(s.plan, 'starter'), COALESCE(s.status, 'trialing')
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		JOIN organizations o ON o.id = u.organization_id
		LEFT JOIN subscriptions s ON s.organization_id = o.id
		WHERE t.token_hash = $1 AND t.revoked_at IS NULL`

	var (
		p    Principal
		plan string
	)
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&p.TokenID, &p.TokenPrefix,
		&p.UserID, &p.Email,
		&p.OrganizationID, &p.OrganizationSlug,
		&plan, &p.SubscriptionStatus,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to resolve principal: %w", err)
	}

	p.Plan = plans.Plan(plan)
	return &p, nil
}

func (s *PostgresService) insertToken(ctx context.Context, q rowQueryer, userID int64) (*IssuedToken, error) {
	raw, hash, prefix, err := s.generator.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := &APIToken{
		UserID:      userID,
		TokenHash:   hash,
		TokenPrefix: prefix,
		CreatedAt:   time.Now().UTC(),
	}

	err = q.QueryRowContext(ctx,
		`INSERT INTO api_tokens (user_id, token_hash, token_prefix, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		token.UserID, token.TokenHash, token.TokenPrefix, token.CreatedAt,
	).Scan(&token.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	return &IssuedToken{Token: token, Raw: raw}, nil
}
