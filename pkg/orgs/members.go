package orgs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/axle/pkg/storage"
)

// ListUsers returns all members of an organization, oldest first.
func (s *PostgresService) ListUsers(ctx context.Context, orgID int64) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, email, full_name, created_at
		 FROM users
		 WHERE organization_id = $1
		 ORDER BY created_at, id`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.OrganizationID, &user.Email, &user.FullName, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}

	return users, nil
}

// CreateUser adds a member to an organization, enforcing the plan's
// MaxUsers ceiling. The check is read-then-write and therefore
// best-effort: two concurrent creations can both pass it. Seat overage is
// a billing concern, not a correctness one, so no lock is taken.
func (s *PostgresService) CreateUser(ctx context.Context, orgID int64, email, fullName string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	usage, err := s.GetSeatUsage(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if usage.Used >= usage.Max {
		return nil, &CapacityError{Limit: usage.Max, Current: usage.Used}
	}

	user := &User{
		OrganizationID: orgID,
		Email:          email,
		FullName:       strings.TrimSpace(fullName),
		CreatedAt:      time.Now().UTC(),
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (organization_id, email, full_name, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		user.OrganizationID, user.Email, user.FullName, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}
