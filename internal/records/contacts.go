package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/act-ops/farmgate/internal/crm"
)

// SQLiteContactStore is the sqlite-backed ContactStore.
type SQLiteContactStore struct {
	db *sql.DB
}

func NewContactStore(db *sql.DB) *SQLiteContactStore {
	return &SQLiteContactStore{db: db}
}

// Upsert inserts or updates the contact keyed on (source_system, source_id)
// in one conflict-resolving statement. created_at survives updates, so
// comparing it to the timestamp we just wrote tells us whether the row is
// new.
func (s *SQLiteContactStore) Upsert(ctx context.Context, c crm.Contact) (crm.UpsertOutcome, error) {
	if c.SourceSystem == "" || c.SourceID == "" {
		return crm.UpsertOutcome{}, fmt.Errorf("contact upsert requires source_system and source_id")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	projectsJSON, err := marshalList(c.Projects)
	if err != nil {
		return crm.UpsertOutcome{}, fmt.Errorf("marshal projects: %w", err)
	}
	tagsJSON, err := marshalList(c.Tags)
	if err != nil {
		return crm.UpsertOutcome{}, fmt.Errorf("marshal tags: %w", err)
	}
	fieldsJSON, err := marshalMap(c.CustomFields)
	if err != nil {
		return crm.UpsertOutcome{}, fmt.Errorf("marshal custom_fields: %w", err)
	}

	syncStatus := c.SyncStatus
	if syncStatus == "" {
		syncStatus = crm.SyncStatusSynced
	}

	var (
		id         string
		createdAtS string
	)
	err = s.db.QueryRowContext(ctx, `
INSERT INTO contacts(
  id, source_system, source_id, email, first_name, last_name, phone, company,
  engagement_status, projects, tags, custom_fields, sync_status,
  created_at, updated_at, last_synced_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source_system, source_id) DO UPDATE SET
  email             = excluded.email,
  first_name        = excluded.first_name,
  last_name         = excluded.last_name,
  phone             = excluded.phone,
  company           = excluded.company,
  engagement_status = excluded.engagement_status,
  projects          = excluded.projects,
  tags              = excluded.tags,
  custom_fields     = excluded.custom_fields,
  sync_status       = excluded.sync_status,
  updated_at        = excluded.updated_at,
  last_synced_at    = excluded.last_synced_at
RETURNING id, created_at;
`, uuid.NewString(), c.SourceSystem, c.SourceID, c.Email, c.FirstName, c.LastName, c.Phone, c.Company,
		c.EngagementStatus, projectsJSON, tagsJSON, fieldsJSON, syncStatus,
		now, now, now).Scan(&id, &createdAtS)
	if err != nil {
		return crm.UpsertOutcome{}, fmt.Errorf("upsert contact %s/%s: %w", c.SourceSystem, c.SourceID, err)
	}

	return crm.UpsertOutcome{ID: id, Created: createdAtS == now}, nil
}

// SoftDelete flips sync_status to deleted and refreshes the sync timestamp,
// leaving every other field untouched.
func (s *SQLiteContactStore) SoftDelete(ctx context.Context, sourceSystem, sourceID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE contacts
SET sync_status = ?, last_synced_at = ?
WHERE source_system = ? AND source_id = ?;
`, crm.SyncStatusDeleted, now, sourceSystem, sourceID)
	if err != nil {
		return fmt.Errorf("soft delete contact %s/%s: %w", sourceSystem, sourceID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("contact %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	return nil
}

// Get returns the contact for a source key.
func (s *SQLiteContactStore) Get(ctx context.Context, sourceSystem, sourceID string) (*crm.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, source_system, source_id, email, first_name, last_name, phone, company,
       engagement_status, projects, tags, custom_fields, sync_status,
       created_at, updated_at, last_synced_at
FROM contacts
WHERE source_system = ? AND source_id = ?;
`, sourceSystem, sourceID)

	var (
		c            crm.Contact
		email        sql.NullString
		firstName    sql.NullString
		lastName     sql.NullString
		phone        sql.NullString
		company      sql.NullString
		projectsJSON string
		tagsJSON     string
		fieldsJSON   string
		createdAtS   string
		updatedAtS   string
		syncedAtS    string
	)
	err := row.Scan(&c.ID, &c.SourceSystem, &c.SourceID, &email, &firstName, &lastName, &phone, &company,
		&c.EngagementStatus, &projectsJSON, &tagsJSON, &fieldsJSON, &c.SyncStatus,
		&createdAtS, &updatedAtS, &syncedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read contact: %w", err)
	}

	c.Email = email.String
	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.Phone = phone.String
	c.Company = company.String
	if err := json.Unmarshal([]byte(projectsJSON), &c.Projects); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &c.CustomFields); err != nil {
		return nil, fmt.Errorf("decode custom_fields: %w", err)
	}
	c.CreatedAt = parseTime(createdAtS)
	c.UpdatedAt = parseTime(updatedAtS)
	c.LastSyncedAt = parseTime(syncedAtS)
	return &c, nil
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
