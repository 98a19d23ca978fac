package webhook_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vendwell/webhookd/internal/signature"
	"github.com/vendwell/webhookd/internal/webhook"
)

type capturedRequest struct {
	headers http.Header
	body    []byte
}

func capturingReceiver(t *testing.T, status int) (*httptest.Server, *capturedRequest) {
	t.Helper()
	cap := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.headers = r.Header.Clone()
		cap.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, cap
}

func dispatchOne(t *testing.T, svc *webhook.Service, eventType, eventID string, payload map[string]any) *webhook.Event {
	t.Helper()
	evt, err := svc.DispatchEvent(context.Background(), webhook.DispatchInput{
		EventType: eventType,
		EventID:   eventID,
		Payload:   payload,
	})
	if err != nil {
		t.Fatalf("DispatchEvent: %v", err)
	}
	return evt
}

func TestDeliveryHeadersAndSignature(t *testing.T) {
	svc, _ := newTestService(t)
	srv, cap := capturingReceiver(t, http.StatusOK)

	ep := createEndpoint(t, svc, "signed", srv.URL, "payment.settled")
	dispatchOne(t, svc, "payment.settled", "pay_1", map[string]any{"amount": 100})

	if got := cap.headers.Get("X-Webhook-Event"); got != "payment.settled" {
		t.Errorf("X-Webhook-Event = %q", got)
	}
	if got := cap.headers.Get("X-Webhook-Event-ID"); got != "pay_1" {
		t.Errorf("X-Webhook-Event-ID = %q", got)
	}
	if got := cap.headers.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := cap.headers.Get("User-Agent"); got != "vendwell-webhookd/1.0" {
		t.Errorf("User-Agent = %q", got)
	}

	ts := cap.headers.Get("X-Webhook-Timestamp")
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("X-Webhook-Timestamp %q is not RFC3339: %v", ts, err)
	}

	sig := cap.headers.Get("X-Webhook-Signature")
	if !signature.Verify(cap.body, sig, ep.Secret) {
		t.Errorf("signature %q does not verify over the delivered body", sig)
	}

	var payload map[string]any
	if err := json.Unmarshal(cap.body, &payload); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if payload["amount"] != float64(100) {
		t.Errorf("payload = %v", payload)
	}
}

func TestDeliveryCustomAndAuthHeaders(t *testing.T) {
	tests := []struct {
		name  string
		in    webhook.CreateEndpointInput
		check func(t *testing.T, h http.Header)
	}{
		{
			"custom headers",
			webhook.CreateEndpointInput{
				Headers: map[string]string{"X-Custom": "yes"},
			},
			func(t *testing.T, h http.Header) {
				if got := h.Get("X-Custom"); got != "yes" {
					t.Errorf("X-Custom = %q", got)
				}
			},
		},
		{
			"bearer auth",
			webhook.CreateEndpointInput{
				AuthType:        webhook.AuthBearer,
				AuthCredentials: map[string]string{"token": "tok_123"},
			},
			func(t *testing.T, h http.Header) {
				if got := h.Get("Authorization"); got != "Bearer tok_123" {
					t.Errorf("Authorization = %q", got)
				}
			},
		},
		{
			"basic auth",
			webhook.CreateEndpointInput{
				AuthType:        webhook.AuthBasic,
				AuthCredentials: map[string]string{"username": "u", "password": "p"},
			},
			func(t *testing.T, h http.Header) {
				want := "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))
				if got := h.Get("Authorization"); got != want {
					t.Errorf("Authorization = %q, want %q", got, want)
				}
			},
		},
		{
			"api key default header",
			webhook.CreateEndpointInput{
				AuthType:        webhook.AuthAPIKey,
				AuthCredentials: map[string]string{"key": "k_123"},
			},
			func(t *testing.T, h http.Header) {
				if got := h.Get("X-API-Key"); got != "k_123" {
					t.Errorf("X-API-Key = %q", got)
				}
			},
		},
		{
			"api key custom header",
			webhook.CreateEndpointInput{
				AuthType:        webhook.AuthAPIKey,
				AuthCredentials: map[string]string{"key": "k_123", "header": "X-Auth-Token"},
			},
			func(t *testing.T, h http.Header) {
				if got := h.Get("X-Auth-Token"); got != "k_123" {
					t.Errorf("X-Auth-Token = %q", got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			srv, cap := capturingReceiver(t, http.StatusOK)

			in := tt.in
			in.Name = "ep"
			in.URL = srv.URL
			in.EventTypes = []string{"a.b"}
			if _, err := svc.CreateEndpoint(context.Background(), in); err != nil {
				t.Fatalf("CreateEndpoint: %v", err)
			}

			dispatchOne(t, svc, "a.b", "e_1", map[string]any{})
			tt.check(t, cap.headers)
		})
	}
}

func TestDeliveryRecordsOutcome(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broken"))
	}))
	t.Cleanup(srv.Close)

	ep := createEndpoint(t, svc, "flaky", srv.URL, "a.b")
	dispatchOne(t, svc, "a.b", "e_1", map[string]any{"k": "v"})

	ds, err := store.ListDeliveries(ctx, webhook.DeliveryFilter{EndpointID: ep.ID}, 0, 0)
	if err != nil || len(ds) != 1 {
		t.Fatalf("deliveries = %v, err = %v", ds, err)
	}
	d := ds[0]
	if d.ResponseStatus != http.StatusBadGateway {
		t.Errorf("ResponseStatus = %d, want 502", d.ResponseStatus)
	}
	if d.ResponseBody != "upstream broken" {
		t.Errorf("ResponseBody = %q", d.ResponseBody)
	}
	if !strings.Contains(d.ErrorMessage, "502") {
		t.Errorf("ErrorMessage = %q, want mention of status", d.ErrorMessage)
	}
	if d.RequestBody == "" || len(d.RequestHeaders) == 0 {
		t.Error("request snapshot should be persisted")
	}

	// counters moved
	got, err := store.GetEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEndpoint: %v", err)
	}
	if got.FailureCount != 1 || got.LastFailureAt == nil {
		t.Errorf("failure counters not recorded: %+v", got)
	}

	logs, err := svc.GetEndpointLogs(ctx, ep.ID, 0, 0)
	if err != nil {
		t.Fatalf("GetEndpointLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d log entries, want 1", len(logs))
	}
}

func TestDeliveryTimeout(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	ep, err := svc.CreateEndpoint(ctx, webhook.CreateEndpointInput{
		Name:           "slow",
		URL:            srv.URL,
		EventTypes:     []string{"a.b"},
		TimeoutSeconds: 1,
	})
	if err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}

	start := time.Now()
	dispatchOne(t, svc, "a.b", "e_1", map[string]any{})
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("dispatch took %v, attempt should be cut off at the 1s endpoint timeout", elapsed)
	}

	ds, _ := store.ListDeliveries(ctx, webhook.DeliveryFilter{EndpointID: ep.ID}, 0, 0)
	if len(ds) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(ds))
	}
	if ds[0].Status != webhook.DeliveryFailed {
		t.Errorf("status = %s, want failed", ds[0].Status)
	}
	if !strings.Contains(strings.ToLower(ds[0].ErrorMessage), "deadline") &&
		!strings.Contains(strings.ToLower(ds[0].ErrorMessage), "timeout") {
		t.Errorf("ErrorMessage = %q, want a timeout error", ds[0].ErrorMessage)
	}
}

func TestResponseBodyCapped(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 10_000)))
	}))
	t.Cleanup(srv.Close)

	ep := createEndpoint(t, svc, "chatty", srv.URL, "a.b")
	dispatchOne(t, svc, "a.b", "e_1", map[string]any{})

	ds, _ := store.ListDeliveries(ctx, webhook.DeliveryFilter{EndpointID: ep.ID}, 0, 0)
	if len(ds) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(ds))
	}
	if got := len(ds[0].ResponseBody); got != 4096 {
		t.Errorf("stored response body is %d bytes, want capped at 4096", got)
	}
}

func TestTestEndpointPersistsNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	srv, cap := capturingReceiver(t, http.StatusOK)
	ep := createEndpoint(t, svc, "probe", srv.URL, "a.b")

	res, err := svc.TestEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("TestEndpoint: %v", err)
	}
	if !res.Success || res.StatusCode != http.StatusOK {
		t.Errorf("result = %+v, want success 200", res)
	}
	if got := cap.headers.Get("X-Webhook-Event"); got != "system.test" {
		t.Errorf("X-Webhook-Event = %q, want system.test", got)
	}

	events, _ := store.ListEvents(ctx, webhook.EventFilter{}, 0, 0)
	if len(events) != 0 {
		t.Errorf("test created %d events, want 0", len(events))
	}
	deliveries, _ := store.ListDeliveries(ctx, webhook.DeliveryFilter{}, 0, 0)
	if len(deliveries) != 0 {
		t.Errorf("test created %d deliveries, want 0", len(deliveries))
	}

	// the audit trail is the one thing that is written
	logs, _ := svc.GetEndpointLogs(ctx, ep.ID, 0, 0)
	if len(logs) != 1 {
		t.Errorf("got %d log entries, want 1", len(logs))
	}
}

func TestTestEndpointUnreachable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// closed port: connection refused, not an error return
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ep := createEndpoint(t, svc, "dead", url, "a.b")
	res, err := svc.TestEndpoint(ctx, ep.ID)
	if err != nil {
		t.Fatalf("TestEndpoint: %v", err)
	}
	if res.Success {
		t.Error("expected failure result for unreachable endpoint")
	}
	if res.Error == "" {
		t.Error("expected error detail in result")
	}
}
