package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/act-ops/farmgate/internal/audit"
	"github.com/act-ops/farmgate/internal/config"
	"github.com/act-ops/farmgate/internal/crm"
	"github.com/act-ops/farmgate/internal/events"
	"github.com/act-ops/farmgate/internal/pipeline"
	"github.com/act-ops/farmgate/internal/projects"
	"github.com/act-ops/farmgate/internal/records"
	"github.com/act-ops/farmgate/internal/storage"
)

// stack wires the real pipeline over a real sqlite file, behind the real
// router. Only the listener is replaced by httptest.
type stack struct {
	router        http.Handler
	secret        string
	xeroSecret    string
	contacts      *records.SQLiteContactStore
	opportunities *records.SQLiteOpportunityStore
	deliveries    *audit.DeliveryLog
	eventLog      *audit.EventLog
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "farmgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	deliveries := audit.NewDeliveryLog(db)
	eventLog := audit.NewEventLog(db)
	contacts := records.NewContactStore(db)
	opportunities := records.NewOpportunityStore(db)

	reg, err := projects.NewRegistry(projects.StaticLoader(projects.DefaultCodes...))
	require.NoError(t, err)

	hub := events.NewHub(64)
	logger := testLogger()

	processor := pipeline.NewProcessor(deliveries, eventLog, hub, config.HashBytes, 5*time.Second, logger)
	processor.Register("ghl", crm.NewHandler(contacts, opportunities, reg, logger))
	processor.Register("xero", crm.NewAccountingHandler(contacts, logger))

	secret := "ghl-secret"
	xeroSecret := "xero-secret"
	server := New(Config{
		Listen: "127.0.0.1:0",
		Sources: []SourceEndpoint{
			{Name: "ghl", Path: "/webhook/ghl", Secret: secret, SignatureHeader: "X-Wh-Signature", MaxBodySize: DefaultMaxBodySize},
			{Name: "xero", Path: "/webhook/xero", Secret: xeroSecret, SignatureHeader: "X-Xero-Signature", MaxBodySize: DefaultMaxBodySize},
		},
	}, processor, logger)

	return &stack{
		router:        server.setupRoutes(),
		secret:        secret,
		xeroSecret:    xeroSecret,
		contacts:      contacts,
		opportunities: opportunities,
		deliveries:    deliveries,
		eventLog:      eventLog,
	}
}

func (s *stack) post(t *testing.T, path, header, secret string, body []byte) (*httptest.ResponseRecorder, pipeline.ResponseBody) {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set(header, computeSignature(body, secret))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var respBody pipeline.ResponseBody
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &respBody)
	}
	return rec, respBody
}

func TestEndToEnd_ContactSyncLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	body := []byte(`{
		"type": "ContactCreate",
		"id": "contact_001",
		"email": "aunty.m@example.org",
		"firstName": "May",
		"lastName": "Brown",
		"tags": ["empathy-ledger", "engagement:active", "newsletter"],
		"customFields": {
			"elder_consent": true,
			"region": "north"
		}
	}`)

	rec, resp := s.post(t, "/webhook/ghl", "X-Wh-Signature", s.secret, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, pipeline.ActionCreated, resp.Result.Action)

	stored, err := s.contacts.Get(ctx, "ghl", "contact_001")
	require.NoError(t, err)
	assert.Equal(t, "aunty.m@example.org", stored.Email)
	assert.Equal(t, []string{"empathy-ledger"}, stored.Projects)
	assert.Equal(t, []string{"engagement:active", "newsletter"}, stored.Tags)
	assert.Equal(t, "active", stored.EngagementStatus)
	assert.NotContains(t, stored.CustomFields, "elder_consent")
	assert.Equal(t, "north", stored.CustomFields["region"])

	// Re-delivery converges on the same record.
	rec, resp = s.post(t, "/webhook/ghl", "X-Wh-Signature", s.secret, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.ActionUpdated, resp.Result.Action)

	// Delete flips sync status without destroying the row.
	delBody := []byte(`{"type":"ContactDelete","id":"contact_001"}`)
	rec, resp = s.post(t, "/webhook/ghl", "X-Wh-Signature", s.secret, delBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Result.Success)

	stored, err = s.contacts.Get(ctx, "ghl", "contact_001")
	require.NoError(t, err)
	assert.Equal(t, crm.SyncStatusDeleted, stored.SyncStatus)
	assert.Equal(t, "aunty.m@example.org", stored.Email)

	// All three deliveries reached a terminal state; anything still in
	// received after processing would be a bug.
	stale, err := s.deliveries.ListStale(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	// One integration event per delivery.
	evs, err := s.eventLog.ListBySource(ctx, "ghl", 50)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
}

func TestEndToEnd_TamperedBodyRejectedAndUnaudited(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	body := []byte(`{"type":"ContactCreate","id":"contact_002"}`)
	req := httptest.NewRequest("POST", "/webhook/ghl", bytes.NewReader(body))
	req.Header.Set("X-Wh-Signature", computeSignature([]byte(`different body`), s.secret))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Rejected before the pipeline: no record, no audit rows.
	_, err := s.contacts.Get(ctx, "ghl", "contact_002")
	require.Error(t, err)
	evs, err := s.eventLog.ListBySource(ctx, "ghl", 10)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestEndToEnd_MalformedJSONAuditedAsFailed(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	body := []byte(`{"type":"ContactCreate",`)
	rec, resp := s.post(t, "/webhook/ghl", "X-Wh-Signature", s.secret, body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	// The delivery row exists in failed state; no integration event.
	evs, err := s.eventLog.ListBySource(ctx, "ghl", 10)
	require.NoError(t, err)
	assert.Empty(t, evs)

	stale, err := s.deliveries.ListStale(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestEndToEnd_HandshakeLeavesNoTrace(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	body := []byte(`{"events":[],"firstEventSequence":0,"lastEventSequence":0}`)
	rec, _ := s.post(t, "/webhook/xero", "X-Xero-Signature", s.xeroSecret, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())

	evs, err := s.eventLog.ListBySource(ctx, "xero", 10)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestEndToEnd_AccountingEnvelope(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	body := []byte(`{
		"events": [
			{
				"resourceId": "res_001",
				"eventCategory": "CONTACT",
				"eventType": "CREATE",
				"resourceData": {
					"Name": "Riverbank Produce",
					"EmailAddress": "orders@riverbank.example"
				}
			}
		],
		"firstEventSequence": 4,
		"lastEventSequence": 4
	}`)

	rec, resp := s.post(t, "/webhook/xero", "X-Xero-Signature", s.xeroSecret, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Result)
	assert.Equal(t, pipeline.ActionCreated, resp.Result.Action)

	stored, err := s.contacts.Get(ctx, "xero", "res_001")
	require.NoError(t, err)
	assert.Equal(t, "orders@riverbank.example", stored.Email)
	assert.Equal(t, "Riverbank Produce", stored.Company)

	evs, err := s.eventLog.ListBySource(ctx, "xero", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "contact.create", evs[0].EventType)
	assert.Equal(t, "created", evs[0].Action)
}

func TestEndToEnd_InvoiceEventSkippedButAudited(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	body := []byte(`{
		"events": [
			{"resourceId": "inv_001", "eventCategory": "INVOICE", "eventType": "CREATE"}
		],
		"firstEventSequence": 5,
		"lastEventSequence": 5
	}`)

	rec, resp := s.post(t, "/webhook/xero", "X-Xero-Signature", s.xeroSecret, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Result)
	assert.Equal(t, pipeline.ActionSkipped, resp.Result.Action)
	assert.False(t, resp.Result.Success)

	evs, err := s.eventLog.ListBySource(ctx, "xero", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "invoice.create", evs[0].EventType)
	assert.Equal(t, "skipped", evs[0].Action)
}

func TestEndToEnd_RedactedFieldsNeverReachEventLog(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	body := []byte(`{
		"type": "ContactUpdate",
		"id": "contact_003",
		"story_content": "restricted narrative",
		"customFields": {"sacred_knowledge": "restricted", "language": "en"}
	}`)

	rec, _ := s.post(t, "/webhook/ghl", "X-Wh-Signature", s.secret, body)
	require.Equal(t, http.StatusOK, rec.Code)

	evs, err := s.eventLog.ListBySource(ctx, "ghl", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	assert.NotContains(t, string(evs[0].Payload), "story_content")
	assert.NotContains(t, string(evs[0].Payload), "sacred_knowledge")
	assert.Contains(t, string(evs[0].Payload), "language")
}
