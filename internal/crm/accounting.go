package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/act-ops/farmgate/internal/pipeline"
	"github.com/act-ops/farmgate/internal/protocol"
)

// AccountingHandler processes canonical events from the accounting
// integration source. Contact changes sync into the canonical contact table;
// invoice and payment events are audited by the pipeline but skipped here —
// the canonical store carries no ledger entities.
type AccountingHandler struct {
	contacts ContactStore
	logger   *slog.Logger
}

func NewAccountingHandler(contacts ContactStore, logger *slog.Logger) *AccountingHandler {
	return &AccountingHandler{contacts: contacts, logger: logger}
}

func (h *AccountingHandler) Handle(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	switch event.EventType {
	case "contact.create", "contact.update":
		return h.upsertContact(ctx, event)
	case "contact.delete":
		return h.deleteContact(ctx, event)
	default:
		return pipeline.Skipped(fmt.Sprintf("unsupported event type %q", event.EventType)), nil
	}
}

func (h *AccountingHandler) upsertContact(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	rec := transformAccountingContact(event.Payload)
	rec.SourceSystem = event.Source
	if rec.SourceID == "" {
		rec.SourceID = event.EntityID
	}
	if rec.SourceID == "" {
		return pipeline.Skipped("accounting contact carries no resource id"), nil
	}

	// Archived contacts arrive as updates; treat them as soft deletes so the
	// canonical record mirrors the source without losing history.
	if rec.SyncStatus == SyncStatusDeleted {
		err := h.contacts.SoftDelete(ctx, rec.SourceSystem, rec.SourceID)
		if errors.Is(err, ErrNotFound) {
			return pipeline.Skipped(fmt.Sprintf("contact %s not found", rec.SourceID)), nil
		}
		if err != nil {
			return persistFailure("contact soft delete", err), nil
		}
		return pipeline.Result{Success: true, Action: pipeline.ActionUpdated}, nil
	}

	outcome, err := h.contacts.Upsert(ctx, rec)
	if err != nil {
		return persistFailure("contact upsert", err), nil
	}
	return upsertResult(outcome), nil
}

func (h *AccountingHandler) deleteContact(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	if event.EntityID == "" {
		return pipeline.Skipped("contact delete carries no resource id"), nil
	}

	err := h.contacts.SoftDelete(ctx, event.Source, event.EntityID)
	if errors.Is(err, ErrNotFound) {
		return pipeline.Skipped(fmt.Sprintf("contact %s not found", event.EntityID)), nil
	}
	if err != nil {
		return persistFailure("contact soft delete", err), nil
	}
	return pipeline.Result{Success: true, Action: pipeline.ActionUpdated}, nil
}

// transformAccountingContact maps the accounting envelope's first event into
// the canonical contact shape. The envelope carries the resource id always
// and resource data when the source includes it; absent fields stay zero.
func transformAccountingContact(payload map[string]any) Contact {
	first := firstEnvelopeEvent(payload)
	data, _ := first["resourceData"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	firstName := getString(data, "FirstName")
	lastName := getString(data, "LastName")
	if firstName == "" && lastName == "" {
		firstName, lastName = splitName(getString(data, "Name"))
	}

	c := Contact{
		SourceID:         getString(first, "resourceId"),
		Email:            getString(data, "EmailAddress"),
		FirstName:        firstName,
		LastName:         lastName,
		Phone:            firstPhone(data),
		Company:          getString(data, "Name"),
		EngagementStatus: DefaultEngagementStatus,
		CustomFields:     protocol.Redact(customFields(data)),
		SyncStatus:       SyncStatusSynced,
	}

	if strings.EqualFold(getString(data, "ContactStatus"), "ARCHIVED") {
		c.SyncStatus = SyncStatusDeleted
	}
	return c
}

func firstEnvelopeEvent(payload map[string]any) map[string]any {
	if events, ok := payload["events"].([]any); ok && len(events) > 0 {
		if first, ok := events[0].(map[string]any); ok {
			return first
		}
	}
	return map[string]any{}
}

func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func firstPhone(data map[string]any) string {
	phones, ok := data["Phones"].([]any)
	if !ok || len(phones) == 0 {
		return ""
	}
	if phone, ok := phones[0].(map[string]any); ok {
		return getString(phone, "PhoneNumber")
	}
	return ""
}
