package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/act-ops/farmgate/internal/pipeline"
)

// mockProcessor records what the server dispatches into the pipeline.
type mockProcessor struct {
	processFn func(ctx context.Context, source string, rawBody []byte, signature string) pipeline.Response
	calls     int
}

func (m *mockProcessor) Process(ctx context.Context, source string, rawBody []byte, signature string) pipeline.Response {
	m.calls++
	if m.processFn != nil {
		return m.processFn(ctx, source, rawBody, signature)
	}
	return pipeline.Response{
		Status: http.StatusOK,
		Body:   pipeline.ResponseBody{Success: true, Result: &pipeline.Result{Success: true, Action: pipeline.ActionCreated}},
	}
}

func testConfig(secret string) Config {
	return Config{
		Listen: "127.0.0.1:0",
		Sources: []SourceEndpoint{
			{
				Name:            "ghl",
				Path:            "/webhook/ghl",
				Secret:          secret,
				SignatureHeader: "X-Wh-Signature",
				MaxBodySize:     1048576,
			},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHandleWebhook_ValidSignature(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"type":"ContactCreate","id":"contact_001"}`)

	mp := &mockProcessor{
		processFn: func(ctx context.Context, source string, rawBody []byte, signature string) pipeline.Response {
			if source != "ghl" {
				t.Errorf("source = %v, want ghl", source)
			}
			if string(rawBody) != string(body) {
				t.Errorf("rawBody = %s, want %s", rawBody, body)
			}
			return pipeline.Response{
				Status: http.StatusOK,
				Body:   pipeline.ResponseBody{Success: true, Result: &pipeline.Result{Success: true, Action: pipeline.ActionCreated, StoreID: "rec-1"}},
			}
		},
	}

	server := New(testConfig(secret), mp, testLogger())

	req := httptest.NewRequest("POST", "/webhook/ghl", bytes.NewReader(body))
	req.Header.Set("X-Wh-Signature", computeSignature(body, secret))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp pipeline.ResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Errorf("Success = false, want true")
	}
	if resp.Result == nil || resp.Result.StoreID != "rec-1" {
		t.Errorf("Result = %+v, want StoreID rec-1", resp.Result)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"type":"ContactCreate"}`)

	mp := &mockProcessor{
		processFn: func(ctx context.Context, source string, rawBody []byte, signature string) pipeline.Response {
			t.Fatal("processor should not be invoked with an invalid signature")
			return pipeline.Response{}
		},
	}

	server := New(testConfig(secret), mp, testLogger())

	req := httptest.NewRequest("POST", "/webhook/ghl", bytes.NewReader(body))
	req.Header.Set("X-Wh-Signature", computeSignature(body, "other-secret"))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleWebhook_MissingSignatureHeader(t *testing.T) {
	body := []byte(`{"type":"ContactCreate"}`)
	mp := &mockProcessor{}
	server := New(testConfig("test-secret"), mp, testLogger())

	req := httptest.NewRequest("POST", "/webhook/ghl", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if mp.calls != 0 {
		t.Errorf("processor invoked %d times, want 0", mp.calls)
	}
}

func TestHandleWebhook_IntentToReceiveProbe(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"events":[],"firstEventSequence":0,"lastEventSequence":0}`)

	mp := &mockProcessor{}
	server := New(testConfig(secret), mp, testLogger())

	req := httptest.NewRequest("POST", "/webhook/ghl", bytes.NewReader(body))
	req.Header.Set("X-Wh-Signature", computeSignature(body, secret))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if mp.calls != 0 {
		t.Errorf("processor invoked %d times, want 0", mp.calls)
	}
}

// An unsigned probe is still rejected: handshake detection runs after
// signature verification.
func TestHandleWebhook_UnsignedProbeRejected(t *testing.T) {
	body := []byte(`{"events":[],"firstEventSequence":0}`)

	mp := &mockProcessor{}
	server := New(testConfig("test-secret"), mp, testLogger())

	req := httptest.NewRequest("POST", "/webhook/ghl", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	server := New(testConfig("test-secret"), &mockProcessor{}, testLogger())
	router := server.setupRoutes()

	req := httptest.NewRequest("GET", "/webhook/ghl", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	secret := "test-secret"
	cfg := testConfig(secret)
	cfg.Sources[0].MaxBodySize = 32

	mp := &mockProcessor{}
	server := New(cfg, mp, testLogger())

	body := bytes.Repeat([]byte("a"), 64)
	req := httptest.NewRequest("POST", "/webhook/ghl", bytes.NewReader(body))
	req.Header.Set("X-Wh-Signature", computeSignature(body, secret))
	rec := httptest.NewRecorder()

	server.handleWebhook(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if mp.calls != 0 {
		t.Errorf("processor invoked %d times, want 0", mp.calls)
	}
}
