package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/axle/pkg/orgs"
	"github.com/platinummonkey/axle/pkg/plans"
	"github.com/platinummonkey/axle/pkg/storage"
)

// PostgresService implements the billing Service interface using PostgreSQL.
type PostgresService struct {
	db            *sql.DB
	webhookSecret string
	orgService    orgs.Service
	archiver      *Archiver
}

// NewPostgresService creates a new PostgresService. An empty webhookSecret
// disables signature verification; a nil archiver disables payload archival.
func NewPostgresService(db *sql.DB, webhookSecret string, orgService orgs.Service, archiver *Archiver) *PostgresService {
	return &PostgresService{
		db:            db,
		webhookSecret: webhookSecret,
		orgService:    orgService,
		archiver:      archiver,
	}
}

// ProcessWebhook runs one delivery through the full gate: signature
// verification, envelope decode, idempotency-key resolution, replay
// short-circuit, then reconciliation and the ledger insert in a single
// transaction. Two deliveries with the same key can never both mutate
// subscription state.
func (s *PostgresService) ProcessWebhook(ctx context.Context, payload []byte, signature, eventID string) (*WebhookResult, error) {
	if s.webhookSecret != "" && !VerifySignature(payload, signature, s.webhookSecret) {
		return nil, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	key := eventID
	if key == "" {
		key = event.ID
	}
	if key == "" {
		return nil, ErrMissingIdempotencyKey
	}

	existing, err := s.lookupEvent(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &WebhookResult{
			Status:         WebhookStatusDuplicate,
			IdempotencyKey: key,
			EventType:      existing.EventType,
			OrganizationID: existing.OrganizationID,
		}, nil
	}

	eventType := event.Type
	if eventType == "" {
		eventType = "unknown"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sub, orgID, err := s.reconcile(ctx, tx, &event)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO billing_events (idempotency_key, event_type, organization_id, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		key, eventType, orgID, payload, time.Now().UTC(),
	); err != nil {
		// Concurrent deliveries race on the unique key. The loser's
		// rollback also discards its subscription write, so the event
		// still applies exactly once.
		if storage.IsUniqueViolation(err) {
			return &WebhookResult{
				Status:         WebhookStatusDuplicate,
				IdempotencyKey: key,
				EventType:      eventType,
			}, nil
		}
		return nil, fmt.Errorf("failed to record billing event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.archiver != nil {
		s.archiver.Archive(key, payload)
	}

	return &WebhookResult{
		Status:         WebhookStatusProcessed,
		IdempotencyKey: key,
		EventType:      eventType,
		Updated:        sub != nil,
		Subscription:   sub,
		OrganizationID: orgID,
	}, nil
}

// GetOrCreateSubscription returns the organization's subscription,
// materializing the starter/trialing default on first read.
func (s *PostgresService) GetOrCreateSubscription(ctx context.Context, orgID int64) (*Subscription, error) {
	return s.getOrCreateSubscription(ctx, s.db, orgID)
}

// OverrideSubscription applies an administrative patch, bypassing event
// normalization. Plan and status values must already be canonical.
func (s *PostgresService) OverrideSubscription(ctx context.Context, orgID int64, patch SubscriptionPatch) (*Subscription, error) {
	if patch.Plan != nil && !plans.IsValid(*patch.Plan) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, *patch.Plan)
	}
	if patch.Status != nil && !IsValidStatus(*patch.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sub, err := s.getOrCreateSubscription(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}

	patch.Apply(sub)
	if err := s.persistSubscription(ctx, tx, sub); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sub, nil
}

// lookupEvent returns the ledger row for an idempotency key, or nil when
// the key has not been seen.
func (s *PostgresService) lookupEvent(ctx context.Context, key string) (*BillingEvent, error) {
	event := &BillingEvent{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, idempotency_key, event_type, organization_id, received_at
		 FROM billing_events
		 WHERE idempotency_key = $1`,
		key,
	).Scan(&event.ID, &event.IdempotencyKey, &event.EventType, &event.OrganizationID, &event.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up billing event: %w", err)
	}
	return event, nil
}
