// Package records persists the canonical Contact and Opportunity records,
// implementing the store interfaces declared in internal/crm.
//
// Each upsert is a single conflict-resolving statement, atomic at the
// storage layer; callers never perform a read-then-write pair.
//
// Two implementations exist per store: the sqlite-backed one used in
// production and an in-memory fake with the same semantics, so pipeline code
// runs against either without structural mocking.
package records

import "github.com/act-ops/farmgate/internal/crm"

// Compile-time interface checks.
var (
	_ crm.ContactStore     = (*SQLiteContactStore)(nil)
	_ crm.ContactStore     = (*MemoryContactStore)(nil)
	_ crm.OpportunityStore = (*SQLiteOpportunityStore)(nil)
	_ crm.OpportunityStore = (*MemoryOpportunityStore)(nil)
)
