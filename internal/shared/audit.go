package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry describes a single audited mutation.
type AuditEntry struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	TenantID string
	Details  map[string]any
	At       time.Time
}

// AuditSink receives audit entries. Implementations must never block the
// caller on failure; audit emission is best effort.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditLogger writes records into audit_logs. Write failures are logged
// and swallowed so a broken sink never blocks the primary operation.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists the entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditEntry) {
	if l == nil || l.pool == nil {
		return
	}
	if err := l.record(ctx, entry); err != nil {
		l.logger.Error("record audit entry",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.Any("error", err))
	}
}

func (l *AuditLogger) record(ctx context.Context, entry AuditEntry) error {
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit entry requires action/entity/entity_id")
	}
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, tenant_id, details, occurred_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, entry.TenantID, detailsJSON, at)
	return err
}

// NopAuditSink discards all entries. Used in tests and as a safe default.
type NopAuditSink struct{}

// Record implements AuditSink.
func (NopAuditSink) Record(context.Context, AuditEntry) {}
