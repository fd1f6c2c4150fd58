package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventLog is the sqlite-backed, append-only integration event store.
type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

// Append inserts one integration event. There is no update path; the table
// is append-only by construction.
func (l *EventLog) Append(ctx context.Context, ev IntegrationEvent) (string, error) {
	if ev.Source == "" {
		return "", fmt.Errorf("source is empty")
	}
	if ev.Action == "" {
		return "", fmt.Errorf("action is empty")
	}

	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	processedAt := ev.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO integration_events(
  id, source, event_type, entity_type, entity_id, action, payload, latency_ms, error, processed_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, ev.Source, ev.EventType, ev.EntityType, ev.EntityID, ev.Action, payload,
		ev.LatencyMs, ev.Error, processedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("append integration event: %w", err)
	}
	return id, nil
}

// ListBySource returns up to limit events for one source, newest first.
func (l *EventLog) ListBySource(ctx context.Context, source string, limit int) ([]IntegrationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, source, event_type, entity_type, entity_id, action, payload, latency_ms, error, processed_at
FROM integration_events
WHERE source = ?
ORDER BY processed_at DESC
LIMIT ?;
`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list integration events: %w", err)
	}
	defer rows.Close()

	var out []IntegrationEvent
	for rows.Next() {
		var (
			ev           IntegrationEvent
			entityID     sql.NullString
			payload      sql.NullString
			errMsg       sql.NullString
			processedAtS string
		)
		if err := rows.Scan(&ev.ID, &ev.Source, &ev.EventType, &ev.EntityType, &entityID,
			&ev.Action, &payload, &ev.LatencyMs, &errMsg, &processedAtS); err != nil {
			return nil, fmt.Errorf("scan integration event: %w", err)
		}
		ev.EntityID = entityID.String
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		if errMsg.Valid {
			ev.Error = &errMsg.String
		}
		if t, err := time.Parse(time.RFC3339Nano, processedAtS); err == nil {
			ev.ProcessedAt = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountByAction returns event counts grouped by action, for operational
// summaries.
func (l *EventLog) CountByAction(ctx context.Context) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT action, COUNT(*)
FROM integration_events
GROUP BY action;
`)
	if err != nil {
		return nil, fmt.Errorf("count integration events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[action] = n
	}
	return out, rows.Err()
}
