package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/twofactor/pkg/audit"
)

// AuditStorage keeps the security audit trail in twofactor_audit_events.
type AuditStorage struct {
	pool *pgxpool.Pool
}

func NewAuditStorage(pool *pgxpool.Pool) *AuditStorage {
	return &AuditStorage{pool: pool}
}

var _ audit.Storage = (*AuditStorage)(nil)

func (s *AuditStorage) Store(ctx context.Context, events ...audit.Event) error {
	switch len(events) {
	case 0:
		return nil
	case 1:
		const query = `
			INSERT INTO twofactor_audit_events (id, account_id, action, result, request_id, ip, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		ev := events[0]
		meta, err := encodeMetadata(ev.Metadata)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, query,
			ev.ID, ev.AccountID, ev.Action, string(ev.Result), ev.RequestID, ev.IP, meta, ev.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
		return nil
	}

	rows := make([][]any, len(events))
	for i, ev := range events {
		meta, err := encodeMetadata(ev.Metadata)
		if err != nil {
			return err
		}
		rows[i] = []any{ev.ID, ev.AccountID, ev.Action, string(ev.Result), ev.RequestID, ev.IP, meta, ev.CreatedAt}
	}
	if _, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"twofactor_audit_events"},
		[]string{"id", "account_id", "action", "result", "request_id", "ip", "metadata", "created_at"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy audit events: %w", err)
	}
	return nil
}

// Query returns matching events newest first.
func (s *AuditStorage) Query(ctx context.Context, c audit.Criteria) ([]audit.Event, error) {
	const query = `
		SELECT id, account_id, action, result, request_id, ip, metadata, created_at
		FROM twofactor_audit_events
		WHERE account_id = $1
		  AND (cardinality($2::text[]) = 0 OR action = ANY($2))
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	actions := c.Actions
	if actions == nil {
		actions = []string{}
	}
	var since any
	if !c.Since.IsZero() {
		since = c.Since
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query, c.AccountID, actions, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Event, error) {
		var (
			ev     audit.Event
			result string
			meta   []byte
		)
		if err := row.Scan(&ev.ID, &ev.AccountID, &ev.Action, &result, &ev.RequestID, &ev.IP, &meta, &ev.CreatedAt); err != nil {
			return ev, err
		}
		ev.Result = audit.Result(result)
		if len(meta) > 0 && string(meta) != "{}" {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return ev, err
			}
		}
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return events, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode audit metadata: %w", err)
	}
	return b, nil
}
