package webhook

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vendwell/webhookd/internal/logging"
	"github.com/vendwell/webhookd/internal/metrics"
	"github.com/vendwell/webhookd/internal/signature"
	"github.com/vendwell/webhookd/internal/tracing"
)

const (
	headerEvent     = "X-Webhook-Event"
	headerEventID   = "X-Webhook-Event-ID"
	headerTimestamp = "X-Webhook-Timestamp"
	headerSignature = "X-Webhook-Signature"
)

// Result is the outcome of a single delivery attempt, returned to the
// manual retry entry point and the test-endpoint diagnostic.
type Result struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"status_code,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	LatencyMs    int64  `json:"latency_ms"`
	Error        string `json:"error,omitempty"`
}

// EngineConfig tunes the delivery engine.
type EngineConfig struct {
	UserAgent        string
	MaxResponseBytes int64
	TestTimeout      time.Duration
}

// Engine executes HTTP delivery attempts: build the request, send it under
// the endpoint's deadline, classify the outcome and persist it. A failing
// endpoint never raises an error out of the engine; only storage failures
// do.
type Engine struct {
	store     Store
	registry  *Registry
	scheduler BackoffScheduler
	dlq       DeadLetterPublisher
	client    *http.Client
	cfg       EngineConfig
	logger    *logging.Logger
}

func NewEngine(store Store, registry *Registry, dlq DeadLetterPublisher, cfg EngineConfig, logger *logging.Logger) *Engine {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "vendwell-webhookd/1.0"
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 4096
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.New("webhookd")
	}
	return &Engine{
		store:    store,
		registry: registry,
		dlq:      dlq,
		// Per-attempt deadlines come from each endpoint's timeout_seconds,
		// via the request context, so the shared client carries none.
		client: &http.Client{},
		cfg:    cfg,
		logger: logger,
	}
}

// Schedule builds attempt 1 for (endpoint, event), persists it pending and
// immediately runs the attempt.
func (e *Engine) Schedule(ctx context.Context, ep *Endpoint, evt *Event) (*Delivery, error) {
	now := time.Now().UTC()
	d := &Delivery{
		ID:            uuid.NewString(),
		EndpointID:    ep.ID,
		EventID:       evt.ID,
		AttemptNumber: 1,
		RequestURL:    ep.URL,
		RequestMethod: ep.HTTPMethod,
		Status:        DeliveryPending,
		ScheduledAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateDelivery(ctx, d); err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}
	if _, err := e.Attempt(ctx, ep, evt, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Attempt runs one HTTP delivery attempt and persists the outcome on d.
// The returned error is non-nil only for storage failures.
func (e *Engine) Attempt(ctx context.Context, ep *Endpoint, evt *Event, d *Delivery) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.attempt",
		attribute.String("delivery_id", d.ID),
		attribute.String("endpoint_id", ep.ID),
		attribute.String("event_id", evt.ID),
		attribute.Int("attempt", d.AttemptNumber),
	)
	defer span.End()

	res, body, headers := e.send(ctx, ep, evt)

	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Int64("http.latency_ms", res.LatencyMs),
	)

	now := time.Now().UTC()
	d.RequestURL = ep.URL
	d.RequestMethod = ep.HTTPMethod
	d.RequestHeaders = headers
	d.RequestBody = string(body)
	d.ResponseStatus = res.StatusCode
	d.ResponseBody = res.ResponseBody
	d.ResponseTimeMs = res.LatencyMs
	d.ErrorMessage = res.Error
	d.UpdatedAt = now

	if res.Success {
		d.Status = DeliverySuccess
		d.DeliveredAt = &now
	} else {
		d.Status = DeliveryFailed
	}
	e.scheduler.OnOutcome(d, ep, res.Success, now)

	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		tracing.SetSpanError(ctx, err)
		return res, fmt.Errorf("update delivery: %w", err)
	}

	e.recordAttempt(ctx, ep, evt, d, res, now)
	return res, nil
}

// Test runs the attempt flow against a synthetic system.test event.
// Nothing is persisted except an audit log row: no Event, no Delivery.
func (e *Engine) Test(ctx context.Context, ep *Endpoint) (Result, error) {
	evt := &Event{
		ID:        uuid.NewString(),
		EventType: "system.test",
		EventID:   "test-" + uuid.NewString(),
		Payload: map[string]any{
			"message":   "test delivery from webhookd",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		CreatedAt: time.Now().UTC(),
	}

	// The synthetic send still honors the endpoint timeout, bounded by the
	// configured diagnostic ceiling.
	testEp := *ep
	if ceiling := int(e.cfg.TestTimeout / time.Second); testEp.TimeoutSeconds > ceiling {
		testEp.TimeoutSeconds = ceiling
	}

	res, _, _ := e.send(ctx, &testEp, evt)

	entry := &LogEntry{
		ID:         uuid.NewString(),
		EndpointID: ep.ID,
		Level:      "info",
		Message:    "test delivery",
		Detail: map[string]any{
			"success":     res.Success,
			"status_code": res.StatusCode,
			"latency_ms":  res.LatencyMs,
			"error":       res.Error,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		return res, fmt.Errorf("append log: %w", err)
	}
	return res, nil
}

// send performs the HTTP call and returns the classified result together
// with the exact request body bytes and header snapshot.
func (e *Engine) send(ctx context.Context, ep *Endpoint, evt *Event) (Result, []byte, map[string]string) {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal payload: %v", err)}, nil, nil
	}

	method := ep.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}

	timeout := time.Duration(ep.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// Hard deadline: the call is aborted at the endpoint's timeout, it does
	// not run on and get logged late.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}, body, nil
	}

	headers := e.buildHeaders(ep, evt, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	start := time.Now()
	resp, doErr := e.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if doErr != nil {
		return Result{Error: doErr.Error(), LatencyMs: latency}, body, headers
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxResponseBytes))
	res := Result{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(respBody),
		LatencyMs:    latency,
	}
	if readErr != nil {
		res.Error = fmt.Sprintf("read response: %v", readErr)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Success = true
	} else if res.Error == "" {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res, body, headers
}

// buildHeaders assembles the outbound header set: standard webhook headers,
// the signature when a secret is configured, the endpoint's static custom
// headers and auth headers derived from auth_type.
func (e *Engine) buildHeaders(ep *Endpoint, evt *Event, body []byte) map[string]string {
	contentType := ep.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	headers := map[string]string{
		"Content-Type":  contentType,
		"User-Agent":    e.cfg.UserAgent,
		headerEvent:     evt.EventType,
		headerEventID:   evt.EventID,
		headerTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if ep.Secret != "" {
		headers[headerSignature] = signature.Sign(body, ep.Secret)
	}
	for k, v := range ep.Headers {
		headers[k] = v
	}
	switch ep.AuthType {
	case AuthBearer:
		if token := ep.AuthCredentials["token"]; token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	case AuthBasic:
		user := ep.AuthCredentials["username"]
		pass := ep.AuthCredentials["password"]
		if user != "" || pass != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
			headers["Authorization"] = "Basic " + cred
		}
	case AuthAPIKey:
		name := ep.AuthCredentials["header"]
		if name == "" {
			name = "X-API-Key"
		}
		if key := ep.AuthCredentials["key"]; key != "" {
			headers[name] = key
		}
	}
	return headers
}

// recordAttempt updates counters, metrics and the audit trail after an
// attempt has been persisted. Bookkeeping failures are logged, not raised:
// the delivery outcome is already durable.
func (e *Engine) recordAttempt(ctx context.Context, ep *Endpoint, evt *Event, d *Delivery, res Result, now time.Time) {
	if err := e.registry.RecordOutcome(ctx, ep.ID, res.Success, now); err != nil {
		e.logger.WithContext(ctx).WithEndpoint(ep.ID).WithError(err).Error("record endpoint outcome failed")
	}

	level, msg := "info", "delivery succeeded"
	if !res.Success {
		level, msg = "warn", "delivery failed"
	}
	logEntry := &LogEntry{
		ID:         uuid.NewString(),
		EndpointID: ep.ID,
		DeliveryID: d.ID,
		Level:      level,
		Message:    msg,
		Detail: map[string]any{
			"attempt":     d.AttemptNumber,
			"status_code": res.StatusCode,
			"latency_ms":  res.LatencyMs,
			"error":       res.Error,
		},
		CreatedAt: now,
	}
	if err := e.store.AppendLog(ctx, logEntry); err != nil {
		e.logger.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("append delivery log failed")
	}

	metrics.DeliveryLatency.Observe(float64(res.LatencyMs) / 1000.0)
	if res.Success {
		metrics.DeliveriesTotal.WithLabelValues("success").Inc()
		e.logger.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(ep.ID).
			WithField("status", res.StatusCode).Debug("delivered")
		return
	}

	metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
	reason := classifyReason(res.Error, res.StatusCode)
	if d.NextRetryAt != nil {
		metrics.RetriesTotal.WithLabelValues(reason).Inc()
		e.logger.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(ep.ID).WithFields(map[string]any{
			"attempt":       d.AttemptNumber,
			"reason":        reason,
			"next_retry_at": d.NextRetryAt.Format(time.RFC3339),
		}).Info("retry scheduled")
		return
	}

	// Attempts exhausted: terminal failure, visible through stats and
	// delivery queries, optionally dead-lettered.
	metrics.ExhaustedTotal.Inc()
	e.logger.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(ep.ID).WithFields(map[string]any{
		"attempt": d.AttemptNumber,
		"reason":  reason,
	}).Warn("delivery failed permanently")
	if e.dlq != nil {
		dl := NewDeadLetter(d, ep, evt, fmt.Sprintf("max attempts reached (%d)", d.AttemptNumber))
		if err := e.dlq.PublishDeadLetter(dl); err != nil {
			e.logger.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("dead letter publish failed")
		}
	}
}
