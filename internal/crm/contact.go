// Package crm holds the canonical record shapes and the per-source
// transformers that build them from verified, normalized webhook payloads.
package crm

import (
	"strings"
	"time"

	"github.com/act-ops/farmgate/internal/projects"
	"github.com/act-ops/farmgate/internal/protocol"
)

// Sync status values. Soft-deleted records keep their row and flip
// sync_status instead of being removed.
const (
	SyncStatusSynced  = "synced"
	SyncStatusDeleted = "deleted"
)

// engagementPrefix is the reserved tag namespace carrying engagement state,
// e.g. "engagement:active".
const engagementPrefix = "engagement:"

// DefaultEngagementStatus applies when no engagement tag is present.
const DefaultEngagementStatus = "lead"

// Contact is the canonical contact record, keyed by
// (SourceSystem, SourceID).
type Contact struct {
	ID               string
	SourceSystem     string
	SourceID         string
	Email            string
	FirstName        string
	LastName         string
	Phone            string
	Company          string
	EngagementStatus string
	Projects         []string
	Tags             []string
	CustomFields     map[string]any
	SyncStatus       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastSyncedAt     time.Time
}

// TransformContact converts a CRM contact payload into the canonical shape.
// Total over its input: absent optional fields become zero values, never
// errors. The custom-field bag passes through the protocol redactor before
// it is embedded; tags are partitioned into project links and the remainder.
func TransformContact(payload map[string]any, reg *projects.Registry) Contact {
	tags := stringSlice(payload["tags"])

	var projectTags, otherTags []string
	for _, tag := range tags {
		if reg != nil && reg.Contains(tag) {
			projectTags = append(projectTags, tag)
		} else {
			otherTags = append(otherTags, tag)
		}
	}

	return Contact{
		SourceID:         getString(payload, "id", "contactId", "contact_id"),
		Email:            getString(payload, "email"),
		FirstName:        getString(payload, "firstName", "first_name"),
		LastName:         getString(payload, "lastName", "last_name"),
		Phone:            getString(payload, "phone"),
		Company:          getString(payload, "companyName", "company_name", "company"),
		EngagementStatus: engagementStatus(tags),
		Projects:         projectTags,
		Tags:             otherTags,
		CustomFields:     protocol.Redact(customFields(payload)),
		SyncStatus:       SyncStatusSynced,
	}
}

// engagementStatus derives the status from the first engagement-namespaced
// tag, defaulting to "lead".
func engagementStatus(tags []string) string {
	for _, tag := range tags {
		if strings.HasPrefix(tag, engagementPrefix) {
			if status := strings.TrimPrefix(tag, engagementPrefix); status != "" {
				return status
			}
		}
	}
	return DefaultEngagementStatus
}

func customFields(payload map[string]any) map[string]any {
	for _, key := range []string{"customFields", "custom_fields"} {
		if bag, ok := payload[key].(map[string]any); ok {
			return bag
		}
	}
	return nil
}

func getString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func getFloat(payload map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return 0
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
