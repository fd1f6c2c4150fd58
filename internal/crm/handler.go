package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/act-ops/farmgate/internal/pipeline"
	"github.com/act-ops/farmgate/internal/projects"
)

// Handler processes canonical events from the CRM integration source.
// Persistence failures come back as structured failed results, never as
// errors crossing the pipeline boundary; only genuine faults (bugs) escape
// to the Processor's recover guard.
type Handler struct {
	contacts      ContactStore
	opportunities OpportunityStore
	projects      *projects.Registry
	logger        *slog.Logger
}

func NewHandler(contacts ContactStore, opportunities OpportunityStore, reg *projects.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		contacts:      contacts,
		opportunities: opportunities,
		projects:      reg,
		logger:        logger,
	}
}

func (h *Handler) Handle(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	switch event.EventType {
	case "contact.create", "contact.update", "contact.tag_update":
		return h.upsertContact(ctx, event)
	case "contact.delete":
		return h.deleteContact(ctx, event)
	case "opportunity.create", "opportunity.update", "opportunity.stage_update", "opportunity.status_update":
		return h.upsertOpportunity(ctx, event)
	case "opportunity.delete":
		return h.deleteOpportunity(ctx, event)
	default:
		return pipeline.Skipped(fmt.Sprintf("unsupported event type %q", event.EventType)), nil
	}
}

func (h *Handler) upsertContact(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	rec := TransformContact(event.Payload, h.projects)
	rec.SourceSystem = event.Source
	if rec.SourceID == "" {
		rec.SourceID = event.EntityID
	}
	if rec.SourceID == "" {
		return pipeline.Skipped("contact payload carries no source id"), nil
	}

	outcome, err := h.contacts.Upsert(ctx, rec)
	if err != nil {
		return persistFailure("contact upsert", err), nil
	}
	return upsertResult(outcome), nil
}

func (h *Handler) deleteContact(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	if event.EntityID == "" {
		return pipeline.Skipped("contact delete carries no source id"), nil
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

func (h *Handler) upsertOpportunity(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	rec := TransformOpportunity(event.Payload)
	rec.SourceSystem = event.Source
	if rec.SourceID == "" {
		rec.SourceID = event.EntityID
	}
	if rec.SourceID == "" {
		return pipeline.Skipped("opportunity payload carries no source id"), nil
	}

	outcome, err := h.opportunities.Upsert(ctx, rec)
	if err != nil {
		return persistFailure("opportunity upsert", err), nil
	}
	return upsertResult(outcome), nil
}

func (h *Handler) deleteOpportunity(ctx context.Context, event pipeline.Event) (pipeline.Result, error) {
	if event.EntityID == "" {
		return pipeline.Skipped("opportunity delete carries no source id"), nil
	}

	err := h.opportunities.SoftDelete(ctx, event.Source, event.EntityID)
	if errors.Is(err, ErrNotFound) {
		return pipeline.Skipped(fmt.Sprintf("opportunity %s not found", event.EntityID)), nil
	}
	if err != nil {
		return persistFailure("opportunity soft delete", err), nil
	}
	return pipeline.Result{Success: true, Action: pipeline.ActionUpdated}, nil
}

func upsertResult(outcome UpsertOutcome) pipeline.Result {
	action := pipeline.ActionUpdated
	if outcome.Created {
		action = pipeline.ActionCreated
	}
	return pipeline.Result{Success: true, Action: action, StoreID: outcome.ID}
}

// persistFailure preserves the underlying store error verbatim for operator
// diagnosis; redacted field values never appear in store errors because
// redaction runs before persistence.
func persistFailure(op string, err error) pipeline.Result {
	return pipeline.Result{
		Success: false,
		Action:  pipeline.ActionFailed,
		Error:   fmt.Sprintf("%s: %v", op, err),
	}
}
