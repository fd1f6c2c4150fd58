package crm

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a (source_system, source_id) key has no row.
var ErrNotFound = errors.New("record not found")

// UpsertOutcome reports what an upsert did.
type UpsertOutcome struct {
	// ID is the store-assigned record id.
	ID string

	// Created is true when the upsert inserted a new row rather than
	// updating an existing one.
	Created bool
}

// ContactStore owns canonical contact mutation. Upsert is idempotent, keyed
// on (source_system, source_id): re-delivery of an identical payload
// converges on the same row. Deletes are soft; the row stays with
// sync_status flipped.
type ContactStore interface {
	Upsert(ctx context.Context, c Contact) (UpsertOutcome, error)
	SoftDelete(ctx context.Context, sourceSystem, sourceID string) error
	Get(ctx context.Context, sourceSystem, sourceID string) (*Contact, error)
}

// OpportunityStore owns canonical opportunity mutation, with the same
// semantics as ContactStore.
type OpportunityStore interface {
	Upsert(ctx context.Context, o Opportunity) (UpsertOutcome, error)
	SoftDelete(ctx context.Context, sourceSystem, sourceID string) error
	Get(ctx context.Context, sourceSystem, sourceID string) (*Opportunity, error)
}
