package records

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/act-ops/farmgate/internal/crm"
)

// MemoryContactStore is the in-memory ContactStore. Semantics match the
// sqlite implementation so pipeline code and tests can run against either.
type MemoryContactStore struct {
	mu       sync.Mutex
	contacts map[string]*crm.Contact
}

func NewMemoryContactStore() *MemoryContactStore {
	return &MemoryContactStore{contacts: make(map[string]*crm.Contact)}
}

func recordKey(sourceSystem, sourceID string) string {
	return sourceSystem + "/" + sourceID
}

func (s *MemoryContactStore) Upsert(ctx context.Context, c crm.Contact) (crm.UpsertOutcome, error) {
	if c.SourceSystem == "" || c.SourceID == "" {
		return crm.UpsertOutcome{}, fmt.Errorf("contact upsert requires source_system and source_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := recordKey(c.SourceSystem, c.SourceID)

	if existing, ok := s.contacts[key]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = now
		c.LastSyncedAt = now
		s.contacts[key] = &c
		return crm.UpsertOutcome{ID: c.ID, Created: false}, nil
	}

	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.LastSyncedAt = now
	s.contacts[key] = &c
	return crm.UpsertOutcome{ID: c.ID, Created: true}, nil
}

func (s *MemoryContactStore) SoftDelete(ctx context.Context, sourceSystem, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[recordKey(sourceSystem, sourceID)]
	if !ok {
		return fmt.Errorf("contact %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	existing.SyncStatus = crm.SyncStatusDeleted
	existing.LastSyncedAt = time.Now().UTC()
	return nil
}

func (s *MemoryContactStore) Get(ctx context.Context, sourceSystem, sourceID string) (*crm.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[recordKey(sourceSystem, sourceID)]
	if !ok {
		return nil, fmt.Errorf("contact %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	copied := *existing
	return &copied, nil
}

// Len reports the number of stored contacts. Test helper.
func (s *MemoryContactStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}

// MemoryOpportunityStore is the in-memory OpportunityStore.
type MemoryOpportunityStore struct {
	mu   sync.Mutex
	opps map[string]*crm.Opportunity
}

func NewMemoryOpportunityStore() *MemoryOpportunityStore {
	return &MemoryOpportunityStore{opps: make(map[string]*crm.Opportunity)}
}

func (s *MemoryOpportunityStore) Upsert(ctx context.Context, o crm.Opportunity) (crm.UpsertOutcome, error) {
	if o.SourceSystem == "" || o.SourceID == "" {
		return crm.UpsertOutcome{}, fmt.Errorf("opportunity upsert requires source_system and source_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := recordKey(o.SourceSystem, o.SourceID)

	if existing, ok := s.opps[key]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
		o.UpdatedAt = now
		o.LastSyncedAt = now
		s.opps[key] = &o
		return crm.UpsertOutcome{ID: o.ID, Created: false}, nil
	}

	o.ID = uuid.NewString()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.LastSyncedAt = now
	s.opps[key] = &o
	return crm.UpsertOutcome{ID: o.ID, Created: true}, nil
}

func (s *MemoryOpportunityStore) SoftDelete(ctx context.Context, sourceSystem, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.opps[recordKey(sourceSystem, sourceID)]
	if !ok {
		return fmt.Errorf("opportunity %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	existing.SyncStatus = crm.SyncStatusDeleted
	existing.LastSyncedAt = time.Now().UTC()
	return nil
}

func (s *MemoryOpportunityStore) Get(ctx context.Context, sourceSystem, sourceID string) (*crm.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.opps[recordKey(sourceSystem, sourceID)]
	if !ok {
		return nil, fmt.Errorf("opportunity %s/%s: %w", sourceSystem, sourceID, crm.ErrNotFound)
	}
	copied := *existing
	return &copied, nil
}
