// Package pipeline orchestrates inbound webhook processing: parse, audit,
// dispatch to a source-specific handler, and record the outcome.
package pipeline

import (
	"context"
	"time"
)

// Action is the business outcome of a processed webhook.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// Event is the request-scoped, normalized view of one inbound webhook.
type Event struct {
	// Source is the integration source identifier (e.g. "ghl", "xero").
	Source string

	// EventType is the canonical dotted type (e.g. "contact.create").
	EventType string

	// EntityType is the segment of EventType before the first dot,
	// "unknown" when the type is empty.
	EntityType string

	// EntityID is the source-system id of the affected entity. May be empty
	// when the payload does not carry one.
	EntityID string

	// Payload is the decoded request body.
	Payload map[string]any

	ReceivedAt time.Time

	// Signature is the source-supplied auth token, already verified by the
	// HTTP layer. Kept for audit context only.
	Signature string
}

// Result is what a Handler produces for one event.
type Result struct {
	Success   bool   `json:"success"`
	Action    Action `json:"action"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
	StoreID   string `json:"storeId,omitempty"`
}

// Skipped builds the structured result for events a handler recognizes it
// has nothing to do with. Audited like a failure, not treated as one.
func Skipped(reason string) Result {
	return Result{Success: false, Action: ActionSkipped, Error: reason}
}

// Failed builds the structured result for a handler-level failure.
func Failed(err error) Result {
	return Result{Success: false, Action: ActionFailed, Error: err.Error()}
}

// Handler processes events for one integration source. Implementations
// compose normalization, redaction, transformation and persistence; they
// return structured results and never let persistence errors escape as
// panics (the Processor guards regardless).
type Handler interface {
	Handle(ctx context.Context, event Event) (Result, error)
}
