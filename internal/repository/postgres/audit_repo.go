package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/toolgate/internal/audit"
)

// WriteBatch вставляет пачку записей аудита одним round-trip (pgx.Batch).
// Таблица append-only: ни UPDATE, ни DELETE здесь нет и не будет.
func (s *Store) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	const query = `
		INSERT INTO audit_records
			(id, trace_id, request_id, session_id, agent_id, tenant_id, role,
			 capability, outcome, error_kind, error, outcome_unknown,
			 attempts, duration_ms, trail, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	batch := &pgx.Batch{}
	for _, r := range records {
		trail, err := json.Marshal(r.Trail)
		if err != nil {
			return fmt.Errorf("postgres: failed to encode trail for %s: %w", r.ID, err)
		}
		batch.Queue(query,
			r.ID, r.TraceID, r.RequestID, r.SessionID, r.AgentID, r.TenantID, r.Role,
			r.Capability, r.Outcome, r.ErrorKind, r.Error, r.OutcomeUnknown,
			r.Attempts, r.DurationMs, trail, r.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: audit batch insert failed: %w", err)
		}
	}
	return nil
}

// AuditFilter — параметры выборки для консоли. Пустое поле = без фильтра.
type AuditFilter struct {
	AgentID    string
	Capability string
	Outcome    string
	Since      time.Time
	Limit      int
}

func (s *Store) QueryAudit(ctx context.Context, f AuditFilter) ([]audit.Record, error) {
	query := `
		SELECT id, trace_id, request_id, session_id, agent_id, tenant_id, role,
		       capability, outcome, error_kind, error, outcome_unknown,
		       attempts, duration_ms, trail, ts
		FROM audit_records
		WHERE ($1 = '' OR agent_id = $1)
		  AND ($2 = '' OR capability = $2)
		  AND ($3 = '' OR outcome = $3)
		  AND ts >= $4
		ORDER BY ts DESC
		LIMIT $5`

	since := f.Since
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, f.AgentID, f.Capability, f.Outcome, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []audit.Record
	for rows.Next() {
		var r audit.Record
		var trail []byte
		if err := rows.Scan(
			&r.ID, &r.TraceID, &r.RequestID, &r.SessionID, &r.AgentID, &r.TenantID, &r.Role,
			&r.Capability, &r.Outcome, &r.ErrorKind, &r.Error, &r.OutcomeUnknown,
			&r.Attempts, &r.DurationMs, &trail, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(trail) > 0 {
			if err := json.Unmarshal(trail, &r.Trail); err != nil {
				return nil, fmt.Errorf("postgres: corrupt trail in record %s: %w", r.ID, err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
