package crm

import (
	"time"

	"github.com/act-ops/farmgate/internal/protocol"
)

// Opportunity is the canonical opportunity record, keyed by
// (SourceSystem, SourceID).
type Opportunity struct {
	ID              string
	SourceSystem    string
	SourceID        string
	ContactSourceID string
	Name            string
	PipelineID      string
	StageID         string
	Status          string
	MonetaryValue   float64
	AssignedTo      string
	CustomFields    map[string]any
	SyncStatus      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSyncedAt    time.Time
}

// TransformOpportunity converts a CRM opportunity payload into the canonical
// shape. Total over its input. Custom fields, when present, pass through the
// same redactor as contact bags.
func TransformOpportunity(payload map[string]any) Opportunity {
	return Opportunity{
		SourceID:        getString(payload, "id", "opportunityId", "opportunity_id"),
		ContactSourceID: getString(payload, "contactId", "contact_id"),
		Name:            getString(payload, "name", "title"),
		PipelineID:      getString(payload, "pipelineId", "pipeline_id"),
		StageID:         getString(payload, "pipelineStageId", "stageId", "stage_id"),
		Status:          getString(payload, "status"),
		MonetaryValue:   getFloat(payload, "monetaryValue", "monetary_value", "value"),
		AssignedTo:      getString(payload, "assignedTo", "assigned_to"),
		CustomFields:    protocol.Redact(customFields(payload)),
		SyncStatus:      SyncStatusSynced,
	}
}
