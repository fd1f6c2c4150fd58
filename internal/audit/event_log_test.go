package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLog_AppendAndList(t *testing.T) {
	el := NewEventLog(testDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, action := range []string{"created", "updated", "skipped"} {
		_, err := el.Append(ctx, IntegrationEvent{
			Source:      "ghl",
			EventType:   "contact.create",
			EntityType:  "contact",
			EntityID:    "c1",
			Action:      action,
			Payload:     []byte(`{"id":"c1"}`),
			LatencyMs:   int64(10 + i),
			ProcessedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	_, err := el.Append(ctx, IntegrationEvent{
		Source:     "xero",
		EventType:  "invoice.create",
		EntityType: "invoice",
		Action:     "skipped",
	})
	require.NoError(t, err)

	events, err := el.ListBySource(ctx, "ghl", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, "skipped", events[0].Action)
	assert.Equal(t, "created", events[2].Action)
	assert.Equal(t, "c1", events[0].EntityID)
	assert.JSONEq(t, `{"id":"c1"}`, string(events[0].Payload))
}

func TestEventLog_ListLimit(t *testing.T) {
	el := NewEventLog(testDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := el.Append(ctx, IntegrationEvent{
			Source:      "ghl",
			EventType:   "contact.update",
			EntityType:  "contact",
			Action:      "updated",
			ProcessedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	events, err := el.ListBySource(ctx, "ghl", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestEventLog_AppendValidation(t *testing.T) {
	el := NewEventLog(testDB(t))
	ctx := context.Background()

	_, err := el.Append(ctx, IntegrationEvent{Action: "created"})
	require.Error(t, err)

	_, err = el.Append(ctx, IntegrationEvent{Source: "ghl"})
	require.Error(t, err)
}

func TestEventLog_CountByAction(t *testing.T) {
	el := NewEventLog(testDB(t))
	ctx := context.Background()

	for _, action := range []string{"created", "created", "updated", "failed"} {
		_, err := el.Append(ctx, IntegrationEvent{
			Source:     "ghl",
			EventType:  "contact.create",
			EntityType: "contact",
			Action:     action,
		})
		require.NoError(t, err)
	}

	counts, err := el.CountByAction(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["created"])
	assert.Equal(t, int64(1), counts["updated"])
	assert.Equal(t, int64(1), counts["failed"])
}
