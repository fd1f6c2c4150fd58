// Package audit persists the forensic trail of the webhook pipeline: one
// lifecycle row per inbound delivery attempt, and one append-only
// integration event per processed webhook.
package audit

import (
	"encoding/json"
	"errors"
	"time"
)

// DeliveryStatus is the lifecycle state of a webhook delivery row.
type DeliveryStatus string

const (
	StatusReceived  DeliveryStatus = "received"
	StatusProcessed DeliveryStatus = "processed"
	StatusFailed    DeliveryStatus = "failed"
)

// Delivery records one inbound webhook attempt. Rows are created in
// StatusReceived before any business logic runs and transition exactly once
// to a terminal state. Rows stuck in StatusReceived indicate a crash and are
// reconciled by the stale sweep.
type Delivery struct {
	ID          string
	Source      string
	EventType   string
	Status      DeliveryStatus
	RawBody     []byte
	BodyDigest  string
	Error       *string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

// IntegrationEvent is the append-only audit record of one processed
// webhook's business outcome. Never mutated after insert.
type IntegrationEvent struct {
	ID          string
	Source      string
	EventType   string
	EntityType  string
	EntityID    string
	Action      string
	Payload     json.RawMessage
	LatencyMs   int64
	Error       *string
	ProcessedAt time.Time
}

// ErrNotReceived is returned when a terminal transition targets a delivery
// that is missing or already terminal.
var ErrNotReceived = errors.New("delivery is not in received state")

// ErrNotFound is returned when a delivery id does not exist.
var ErrNotFound = errors.New("delivery not found")
