package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "keystone/pkg/platform/audit"
	txcontext "keystone/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL. Events land in an append-only
// table with the queryable dimensions as indexed columns and the full event
// as a JSONB payload; the Kafka forwarder reads appended events for SIEM
// fan-out, so this table is also the outbox.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer prefers an in-flight transaction from the context so appends can
// join a caller's commit boundary.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Schema is the DDL the store expects. Applied by migrations, kept here so
// integration tests can bootstrap.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	event_subtype TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	related_actor_id TEXT NOT NULL DEFAULT '',
	tenant_id UUID,
	market TEXT NOT NULL DEFAULT '',
	business_unit TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	resource_type TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL DEFAULT '',
	result TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT '',
	compliance_tags TEXT[] NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events (resource_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_subtype ON audit_events (event_subtype, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_market ON audit_events (market, occurred_at);
`

// Append writes an audit event. The payload column is the source of truth;
// the remaining columns exist for filtering.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	var tenant any
	if !event.TenantID.IsNil() {
		tenant = uuid.UUID(event.TenantID)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (
			id, event_type, event_subtype, actor_id, related_actor_id,
			tenant_id, market, business_unit, resource_id, resource_type,
			action, result, severity, compliance_tags, occurred_at, payload
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		event.ID, event.Type, string(event.Subtype), event.ActorID, event.RelatedActorID,
		tenant, string(event.Market), event.BusinessUnit, event.ResourceID, event.ResourceType,
		event.Action, event.Result, string(event.Severity), pq.Array(event.ComplianceTags),
		event.Timestamp, payload,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Query returns events matching the filter in ascending time order.
func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	query := `SELECT payload FROM audit_events WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ResourceID != "" {
		query += " AND resource_id = " + arg(filter.ResourceID)
	}
	if filter.ResourceType != "" {
		query += " AND resource_type = " + arg(filter.ResourceType)
	}
	if filter.ActorID != "" {
		query += " AND actor_id = " + arg(filter.ActorID)
	}
	if filter.Subtype != "" {
		query += " AND event_subtype = " + arg(string(filter.Subtype))
	}
	if filter.Market != "" {
		query += " AND market = " + arg(string(filter.Market))
	}
	if !filter.TenantID.IsNil() {
		query += " AND tenant_id = " + arg(uuid.UUID(filter.TenantID))
	}
	if !filter.StartTime.IsZero() {
		query += " AND occurred_at >= " + arg(filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query += " AND occurred_at <= " + arg(filter.EndTime)
	}
	query += " ORDER BY occurred_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		var event audit.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

var _ audit.Store = (*Store)(nil)
