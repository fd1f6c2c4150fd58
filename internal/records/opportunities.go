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

// SQLiteOpportunityStore is the sqlite-backed OpportunityStore.
type SQLiteOpportunityStore struct {
	db *sql.DB
}

func NewOpportunityStore(db *sql.DB) *SQLiteOpportunityStore {
	return &SQLiteOpportunityStore{db: db}
}

// Upsert inserts or updates the opportunity keyed on
// (source_system, source_id) in one conflict-resolving statement.
func (s *SQLiteOpportunityStore) Upsert(ctx context.Context, o crm.Opportunity) (crm.UpsertOutcome, error) {
	if o.SourceSystem == "" || o.SourceID == "" {
		return crm.UpsertOutcome{}, fmt.Errorf("opportunity upsert requires source_system and source_id")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	fieldsJSON, err := marshalMap(o.CustomFields)
	if err != nil {
		return crm.UpsertOutcome{}, fmt.Errorf("marshal custom_fields: %w", err)
	}

	syncStatus := o.SyncStatus
	if syncStatus == "" {
		syncStatus = crm.SyncStatusSynced
	}

	var (
		id         string
		createdAtS string
	)
	err = s.db.QueryRowContext(ctx, `
INSERT INTO opportunities(
  id, source_system, source_id, contact_source_id, name, pipeline_id, stage_id,
  status, monetary_value, assigned_to, custom_fields, sync_status,
  created_at, updated_at, last_synced_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source_system, source_id) DO UPDATE SET
  contact_source_id = excluded.contact_source_id,
  name              = excluded.name,
  pipeline_id       = excluded.pipeline_id,
  stage_id          = excluded.stage_id,
  status            = excluded.status,
  monetary_value    = excluded.monetary_value,
  assigned_to       = excluded.assigned_to,
  custom_fields     = excluded.custom_fields,
  sync_status       = excluded.sync_status,
  updated_at        = excluded.updated_at,
  last_synced_at    = excluded.last_synced_at
RETURNING id, created_at;
`, uuid.NewString(), o.SourceSystem, o.SourceID, o.ContactSourceID, o.Name, o.PipelineID, o.StageID,
		o.Status, o.MonetaryValue, o.AssignedTo, fieldsJSON, syncStatus,
		now, now, now).Scan(&id, &createdAtS)
	if err != nil {
		return crm.UpsertOutcome{}, fmt.Errorf("upsert opportunity %s/%s: %w", o.SourceSystem, o.SourceID, err)
	}

	return crm.UpsertOutcome{ID: id, Created: createdAtS == now}, nil
}

// SoftDelete flips sync_status to deleted and refreshes the sync timestamp.
func (s *SQLiteOpportunityStore) SoftDelete(ctx context.Context, sourceSystem, sourceID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE opportunities
SET sync_status = ?, last_synced_at = ?
WHERE source_system = ? AND source_id = ?;
`, crm.SyncStatusDeleted, now, sourceSystem, sourceID)
	if err != nil {
		return fmt.Errorf("soft delete opportunity %s/%s: %w", sourceSystem, sourceID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("opportunity %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	return nil
}

// Get returns the opportunity for a source key.
func (s *SQLiteOpportunityStore) Get(ctx context.Context, sourceSystem, sourceID string) (*crm.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, source_system, source_id, contact_source_id, name, pipeline_id, stage_id,
       status, monetary_value, assigned_to, custom_fields, sync_status,
       created_at, updated_at, last_synced_at
FROM opportunities
WHERE source_system = ? AND source_id = ?;
`, sourceSystem, sourceID)

	var (
		o          crm.Opportunity
		contactID  sql.NullString
		name       sql.NullString
		pipelineID sql.NullString
		stageID    sql.NullString
		status     sql.NullString
		assignedTo sql.NullString
		fieldsJSON string
		createdAtS string
		updatedAtS string
		syncedAtS  string
	)
	err := row.Scan(&o.ID, &o.SourceSystem, &o.SourceID, &contactID, &name, &pipelineID, &stageID,
		&status, &o.MonetaryValue, &assignedTo, &fieldsJSON, &o.SyncStatus,
		&createdAtS, &updatedAtS, &syncedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read opportunity: %w", err)
	}

	o.ContactSourceID = contactID.String
	o.Name = name.String
	o.PipelineID = pipelineID.String
	o.StageID = stageID.String
	o.Status = status.String
	o.AssignedTo = assignedTo.String
	if err := json.Unmarshal([]byte(fieldsJSON), &o.CustomFields); err != nil {
		return nil, fmt.Errorf("decode custom_fields: %w", err)
	}
	o.CreatedAt = parseTime(createdAtS)
	o.UpdatedAt = parseTime(updatedAtS)
	o.LastSyncedAt = parseTime(syncedAtS)
	return &o, nil
}
