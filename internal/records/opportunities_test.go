package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/act-ops/farmgate/internal/crm"
)

func TestOpportunityStore_UpsertCreatesThenUpdates(t *testing.T) {
	store := NewOpportunityStore(testDB(t))
	ctx := context.Background()

	o := crm.Opportunity{
		SourceSystem:    "ghl",
		SourceID:        "opp_001",
		ContactSourceID: "contact_001",
		Name:            "Harvest supply agreement",
		StageID:         "stage_1",
		MonetaryValue:   1500,
		SyncStatus:      crm.SyncStatusSynced,
	}

	out1, err := store.Upsert(ctx, o)
	require.NoError(t, err)
	assert.True(t, out1.Created)

	o.StageID = "stage_2"
	o.MonetaryValue = 1800
	out2, err := store.Upsert(ctx, o)
	require.NoError(t, err)
	assert.False(t, out2.Created)
	assert.Equal(t, out1.ID, out2.ID)

	stored, err := store.Get(ctx, "ghl", "opp_001")
	require.NoError(t, err)
	assert.Equal(t, "stage_2", stored.StageID)
	assert.Equal(t, 1800.0, stored.MonetaryValue)
	assert.Equal(t, "contact_001", stored.ContactSourceID)
}

func TestOpportunityStore_SoftDelete(t *testing.T) {
	store := NewOpportunityStore(testDB(t))
	ctx := context.Background()

	_, err := store.Upsert(ctx, crm.Opportunity{SourceSystem: "ghl", SourceID: "opp_001"})
	require.NoError(t, err)

	require.NoError(t, store.SoftDelete(ctx, "ghl", "opp_001"))

	stored, err := store.Get(ctx, "ghl", "opp_001")
	require.NoError(t, err)
	assert.Equal(t, crm.SyncStatusDeleted, stored.SyncStatus)

	err = store.SoftDelete(ctx, "ghl", "ghost")
	require.ErrorIs(t, err, crm.ErrNotFound)
}

func TestMemoryStores_MatchSQLiteSemantics(t *testing.T) {
	ctx := context.Background()

	contacts := NewMemoryContactStore()
	out, err := contacts.Upsert(ctx, crm.Contact{SourceSystem: "ghl", SourceID: "c1", Email: "a@example.org"})
	require.NoError(t, err)
	assert.True(t, out.Created)

	out2, err := contacts.Upsert(ctx, crm.Contact{SourceSystem: "ghl", SourceID: "c1", Email: "b@example.org"})
	require.NoError(t, err)
	assert.False(t, out2.Created)
	assert.Equal(t, out.ID, out2.ID)
	assert.Equal(t, 1, contacts.Len())

	require.NoError(t, contacts.SoftDelete(ctx, "ghl", "c1"))
	stored, err := contacts.Get(ctx, "ghl", "c1")
	require.NoError(t, err)
	assert.Equal(t, crm.SyncStatusDeleted, stored.SyncStatus)

	require.ErrorIs(t, contacts.SoftDelete(ctx, "ghl", "ghost"), crm.ErrNotFound)

	_, err = contacts.Upsert(ctx, crm.Contact{SourceID: "c1"})
	require.Error(t, err)
}
