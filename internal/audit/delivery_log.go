package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryLog is the sqlite-backed delivery lifecycle store.
type DeliveryLog struct {
	db *sql.DB
}

func NewDeliveryLog(db *sql.DB) *DeliveryLog {
	return &DeliveryLog{db: db}
}

// Create inserts a delivery row and returns its id. Callers log the row in
// StatusReceived before invoking any business logic; unparsable bodies are
// logged directly in StatusFailed.
func (l *DeliveryLog) Create(ctx context.Context, d Delivery) (string, error) {
	if d.Source == "" {
		return "", fmt.Errorf("source is empty")
	}
	if d.Status == "" {
		d.Status = StatusReceived
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	var processedAt any
	if d.Status != StatusReceived {
		processedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	var body any
	if len(d.RawBody) > 0 {
		body = string(d.RawBody)
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO webhook_deliveries(
  id, source, event_type, status, raw_body, body_digest, error, received_at, processed_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, d.Source, d.EventType, string(d.Status), body, d.BodyDigest, d.Error,
		receivedAt.Format(time.RFC3339Nano), processedAt)
	if err != nil {
		return "", fmt.Errorf("insert delivery: %w", err)
	}
	return id, nil
}

// MarkProcessed transitions a received delivery to processed.
func (l *DeliveryLog) MarkProcessed(ctx context.Context, id string) error {
	return l.terminal(ctx, id, StatusProcessed, nil)
}

// MarkFailed transitions a received delivery to failed, attaching the error.
func (l *DeliveryLog) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return l.terminal(ctx, id, StatusFailed, &errMsg)
}

// terminal applies the one allowed transition. The status guard in the WHERE
// clause makes the transition exactly-once: a second call finds no row.
func (l *DeliveryLog) terminal(ctx context.Context, id string, status DeliveryStatus, errMsg *string) error {
	if id == "" {
		return fmt.Errorf("delivery id is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
UPDATE webhook_deliveries
SET status = ?, error = ?, processed_at = ?
WHERE id = ? AND status = ?;
`, string(status), errMsg, now, id, string(StatusReceived))
	if err != nil {
		return fmt.Errorf("update delivery %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delivery %s: %w", id, ErrNotReceived)
	}
	return nil
}

// Get returns one delivery by id.
func (l *DeliveryLog) Get(ctx context.Context, id string) (*Delivery, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, source, event_type, status, raw_body, body_digest, error, received_at, processed_at
FROM webhook_deliveries
WHERE id = ?;
`, id)

	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read delivery: %w", err)
	}
	return d, nil
}

// ListRecent returns up to limit deliveries for one source, newest first.
func (l *DeliveryLog) ListRecent(ctx context.Context, source string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, source, event_type, status, raw_body, body_digest, error, received_at, processed_at
FROM webhook_deliveries
WHERE source = ?
ORDER BY received_at DESC
LIMIT ?;
`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListStale returns deliveries still in StatusReceived that were received
// before cutoff, oldest first. These rows indicate a crash mid-pipeline.
func (l *DeliveryLog) ListStale(ctx context.Context, cutoff time.Time) ([]Delivery, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, source, event_type, status, raw_body, body_digest, error, received_at, processed_at
FROM webhook_deliveries
WHERE status = ? AND received_at < ?
ORDER BY received_at ASC;
`, string(StatusReceived), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list stale deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// SweepStale marks every stale received row failed with errMsg and returns
// the number of rows reconciled.
func (l *DeliveryLog) SweepStale(ctx context.Context, cutoff time.Time, errMsg string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
UPDATE webhook_deliveries
SET status = ?, error = ?, processed_at = ?
WHERE status = ? AND received_at < ?;
`, string(StatusFailed), errMsg, now, string(StatusReceived), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("sweep stale deliveries: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var (
		d            Delivery
		statusS      string
		eventType    sql.NullString
		body         sql.NullString
		digest       sql.NullString
		errMsg       sql.NullString
		receivedAtS  string
		processedAtS sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Source, &eventType, &statusS, &body, &digest, &errMsg, &receivedAtS, &processedAtS); err != nil {
		return nil, err
	}

	d.Status = DeliveryStatus(statusS)
	d.EventType = eventType.String
	d.BodyDigest = digest.String
	if body.Valid {
		d.RawBody = []byte(body.String)
	}
	if errMsg.Valid {
		d.Error = &errMsg.String
	}
	if t, err := time.Parse(time.RFC3339Nano, receivedAtS); err == nil {
		d.ReceivedAt = t
	}
	if processedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, processedAtS.String); err == nil {
			d.ProcessedAt = &t
		}
	}
	return &d, nil
}
