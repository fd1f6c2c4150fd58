package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/act-ops/farmgate/internal/audit"
	"github.com/act-ops/farmgate/internal/protocol"
)

// DeliveryLogger records the lifecycle of every inbound delivery attempt.
type DeliveryLogger interface {
	Create(ctx context.Context, d audit.Delivery) (string, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// EventRecorder appends integration events.
type EventRecorder interface {
	Append(ctx context.Context, ev audit.IntegrationEvent) (string, error)
}

// Publisher pushes processed-event summaries to in-process subscribers.
type Publisher interface {
	Publish(eventType string, data any)
}

// BodyDigester hashes a raw request body for the delivery row.
type BodyDigester func(body []byte) string

// Response is the HTTP-shaped result of processing one delivery.
type Response struct {
	Status int
	Body   ResponseBody
}

// ResponseBody is the small JSON envelope returned to the sender. Success
// means "handled"; Result.Success distinguishes business outcomes.
type ResponseBody struct {
	Success bool    `json:"success"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Processor runs the per-request state machine:
// parsing -> delivery-logged(received) -> handling -> emitting ->
// delivery-logged(terminal). Each invocation is independent and stateless;
// the persistent stores are the only shared state.
type Processor struct {
	handlers   map[string]Handler
	deliveries DeliveryLogger
	eventLog   EventRecorder
	hub        Publisher
	digest     BodyDigester
	timeout    time.Duration
	logger     *slog.Logger
}

func NewProcessor(deliveries DeliveryLogger, eventLog EventRecorder, hub Publisher, digest BodyDigester, timeout time.Duration, logger *slog.Logger) *Processor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if digest == nil {
		digest = func([]byte) string { return "" }
	}
	return &Processor{
		handlers:   make(map[string]Handler),
		deliveries: deliveries,
		eventLog:   eventLog,
		hub:        hub,
		digest:     digest,
		timeout:    timeout,
		logger:     logger,
	}
}

// Register attaches the handler for a source.
func (p *Processor) Register(source string, h Handler) {
	p.handlers[source] = h
}

// Process runs one raw delivery through the pipeline. It never panics and
// never returns a raw error to the HTTP layer: every failure mode becomes a
// structured Response plus the two audit artifacts (delivery transition,
// integration event).
func (p *Processor) Process(ctx context.Context, source string, rawBody []byte, signature string) Response {
	start := time.Now()

	// Audit writes must still land if the sender hangs up mid-pipeline.
	auditCtx := context.WithoutCancel(ctx)

	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		parseErr := fmt.Sprintf("invalid JSON payload: %v", err)
		if _, dlErr := p.deliveries.Create(auditCtx, audit.Delivery{
			Source:     source,
			Status:     audit.StatusFailed,
			RawBody:    rawBody,
			BodyDigest: p.digest(rawBody),
			Error:      &parseErr,
		}); dlErr != nil {
			p.logger.Error("failed to log malformed delivery", "source", source, "error", dlErr)
		}
		return Response{
			Status: http.StatusBadRequest,
			Body:   ResponseBody{Success: false, Error: "invalid JSON payload"},
		}
	}

	eventType := Normalize(source, rawEventType(payload))
	event := Event{
		Source:     source,
		EventType:  eventType,
		EntityType: EntityType(eventType),
		EntityID:   entityID(payload),
		Payload:    payload,
		ReceivedAt: start.UTC(),
		Signature:  signature,
	}

	// The received row goes in before any business logic so a crash from
	// here on still leaves a forensic trail.
	deliveryID, err := p.deliveries.Create(auditCtx, audit.Delivery{
		Source:     source,
		EventType:  eventType,
		Status:     audit.StatusReceived,
		RawBody:    rawBody,
		BodyDigest: p.digest(rawBody),
		ReceivedAt: event.ReceivedAt,
	})
	if err != nil {
		p.logger.Error("failed to log delivery", "source", source, "event_type", eventType, "error", err)
		return Response{
			Status: http.StatusInternalServerError,
			Body:   ResponseBody{Success: false, Error: "delivery could not be recorded"},
		}
	}

	handlerCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, handlerErr := p.dispatch(handlerCtx, event)
	if result.LatencyMs == 0 {
		result.LatencyMs = time.Since(start).Milliseconds()
	}

	p.emit(auditCtx, event, result)

	if result.Success {
		if err := p.deliveries.MarkProcessed(auditCtx, deliveryID); err != nil {
			p.logger.Error("failed to mark delivery processed", "delivery_id", deliveryID, "error", err)
		}
	} else {
		if err := p.deliveries.MarkFailed(auditCtx, deliveryID, result.Error); err != nil {
			p.logger.Error("failed to mark delivery failed", "delivery_id", deliveryID, "error", err)
		}
	}

	p.logger.Info("webhook processed",
		"source", source,
		"event_type", eventType,
		"action", string(result.Action),
		"success", result.Success,
		"latency_ms", result.LatencyMs,
		"delivery_id", deliveryID,
	)

	if handlerErr != nil {
		// Uncaught handler fault: audited above, surfaced as a server error.
		return Response{
			Status: http.StatusInternalServerError,
			Body:   ResponseBody{Success: false, Error: result.Error},
		}
	}

	// Business-level failures (skipped included) were handled: the sender
	// gets 200 so at-least-once retry loops don't amplify events we will
	// never support. Result.Success carries the distinction.
	return Response{
		Status: http.StatusOK,
		Body:   ResponseBody{Success: true, Result: &result},
	}
}

// dispatch invokes the source handler inside a failure boundary. A panic or
// returned error is converted into a failed Result; the non-nil error return
// marks it as a handler fault for the HTTP status.
func (p *Processor) dispatch(ctx context.Context, event Event) (result Result, fault error) {
	handler, ok := p.handlers[event.Source]
	if !ok {
		return Skipped(fmt.Sprintf("no handler registered for source %q", event.Source)), nil
	}

	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("handler panic: %v", r)
			result = Failed(fault)
		}
	}()

	result, err := handler.Handle(ctx, event)
	if err != nil {
		return Failed(err), err
	}
	if !result.Success && result.Action != ActionSkipped && result.Action != ActionFailed {
		// Handlers must not report unsuccessful results under a mutation
		// action; normalize rather than trust.
		result.Action = ActionFailed
	}
	return result, nil
}

// emit appends the integration event and publishes it to the hub. The
// payload echoed into the audit row passes through the protocol redactor
// first; restricted fields never leave the raw delivery record.
func (p *Processor) emit(ctx context.Context, event Event, result Result) {
	payload, err := json.Marshal(redactPayload(event.Payload))
	if err != nil {
		payload = []byte("{}")
	}

	var errMsg *string
	if result.Error != "" {
		errMsg = &result.Error
	}

	ev := audit.IntegrationEvent{
		Source:      event.Source,
		EventType:   event.EventType,
		EntityType:  event.EntityType,
		EntityID:    event.EntityID,
		Action:      string(result.Action),
		Payload:     payload,
		LatencyMs:   result.LatencyMs,
		Error:       errMsg,
		ProcessedAt: time.Now().UTC(),
	}

	if _, err := p.eventLog.Append(ctx, ev); err != nil {
		p.logger.Error("failed to append integration event",
			"source", event.Source, "event_type", event.EventType, "error", err)
	}

	if p.hub != nil {
		p.hub.Publish("integration.event", map[string]any{
			"source":      ev.Source,
			"event_type":  ev.EventType,
			"entity_type": ev.EntityType,
			"entity_id":   ev.EntityID,
			"action":      ev.Action,
			"latency_ms":  ev.LatencyMs,
			"success":     result.Success,
		})
	}
}

// redactPayload applies the protocol redactor to a payload before it is
// echoed anywhere beyond the raw delivery row: top level plus any nested
// custom-field bag.
func redactPayload(payload map[string]any) map[string]any {
	out := protocol.Redact(payload)
	for _, key := range []string{"customFields", "custom_fields"} {
		if bag, ok := out[key].(map[string]any); ok {
			out[key] = protocol.Redact(bag)
		}
	}
	return out
}
