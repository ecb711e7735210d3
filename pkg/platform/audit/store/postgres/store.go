package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	audit "eventpass/pkg/platform/audit"
	txcontext "eventpass/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

// Append writes an audit event. Category is always derived from the action.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var actor *uuid.UUID
	if !event.ActorID.IsNil() {
		u := uuid.UUID(event.ActorID)
		actor = &u
	}

	_, err := s.exec(ctx, `
		INSERT INTO audit_events (
			id, category, occurred_at, action, actor_id, subject, event_id,
			decision, reason, request_id, device, ip_prefix
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.New(),
		string(audit.AuditEvent(event.Action).Category()),
		event.Timestamp,
		event.Action,
		actor,
		nullIfEmpty(event.Subject),
		nullIfEmpty(event.EventID),
		nullIfEmpty(event.Decision),
		nullIfEmpty(event.Reason),
		nullIfEmpty(event.RequestID),
		nullIfEmpty(event.Device),
		nullIfEmpty(event.IPPrefix),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
