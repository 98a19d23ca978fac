package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vendwell/webhookd/internal/api"
	"github.com/vendwell/webhookd/internal/store/memory"
	"github.com/vendwell/webhookd/internal/webhook"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	svc := webhook.NewService(memory.New(), webhook.ServiceConfig{})
	mux := http.NewServeMux()
	api.NewHandler(svc, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestEndpointCRUD(t *testing.T) {
	srv := newTestAPI(t)

	var ep webhook.Endpoint
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/endpoints", map[string]any{
		"name":        "billing",
		"url":         "https://example.com/hooks",
		"event_types": []string{"invoice.paid"},
	}, &ep)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if ep.ID == "" || ep.Secret == "" {
		t.Fatalf("created endpoint missing id or secret: %+v", ep)
	}

	var got webhook.Endpoint
	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/endpoints/"+ep.ID, nil, &got)
	if resp.StatusCode != http.StatusOK || got.Name != "billing" {
		t.Errorf("get status = %d, name = %q", resp.StatusCode, got.Name)
	}

	var updated webhook.Endpoint
	resp = doJSON(t, http.MethodPatch, srv.URL+"/v1/endpoints/"+ep.ID, map[string]any{
		"status": "suspended",
	}, &updated)
	if resp.StatusCode != http.StatusOK || updated.Status != webhook.StatusSuspended {
		t.Errorf("patch status = %d, endpoint status = %s", resp.StatusCode, updated.Status)
	}

	var list []webhook.Endpoint
	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/endpoints?status=suspended", nil, &list)
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Errorf("list status = %d, n = %d", resp.StatusCode, len(list))
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/endpoints/"+ep.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/endpoints/"+ep.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateEndpointRejectsBadInput(t *testing.T) {
	srv := newTestAPI(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing url", map[string]any{"name": "x", "event_types": []string{"a.b"}}},
		{"bad url", map[string]any{"name": "x", "url": "ftp://x", "event_types": []string{"a.b"}}},
		{"unknown field", map[string]any{"name": "x", "url": "https://x.test", "event_types": []string{"a.b"}, "bogus": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/v1/endpoints", tt.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestDispatchAndListFlow(t *testing.T) {
	srv := newTestAPI(t)

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	var ep webhook.Endpoint
	doJSON(t, http.MethodPost, srv.URL+"/v1/endpoints", map[string]any{
		"name":        "orders",
		"url":         receiver.URL,
		"event_types": []string{"order.created"},
	}, &ep)

	var evt webhook.Event
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/events", map[string]any{
		"event_type": "order.created",
		"event_id":   "ord_1",
		"payload":    map[string]any{"total": 9.99},
	}, &evt)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("dispatch status = %d, want 201", resp.StatusCode)
	}
	if !evt.IsProcessed {
		t.Error("dispatched event should be processed")
	}

	var events []webhook.Event
	doJSON(t, http.MethodGet, srv.URL+"/v1/events?event_type=order.created", nil, &events)
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}

	var deliveries []webhook.Delivery
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/deliveries?endpoint_id=%s", srv.URL, ep.ID), nil, &deliveries)
	if len(deliveries) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(deliveries))
	}
	if deliveries[0].Status != webhook.DeliverySuccess {
		t.Errorf("delivery status = %s, want success", deliveries[0].Status)
	}

	var logs []webhook.LogEntry
	doJSON(t, http.MethodGet, srv.URL+"/v1/endpoints/"+ep.ID+"/logs", nil, &logs)
	if len(logs) != 1 {
		t.Errorf("got %d logs, want 1", len(logs))
	}

	var st webhook.Stats
	doJSON(t, http.MethodGet, srv.URL+"/v1/stats", nil, &st)
	if st.TotalDeliveries != 1 || st.ByStatus["success"] != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestTestEndpointRoute(t *testing.T) {
	srv := newTestAPI(t)

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	var ep webhook.Endpoint
	doJSON(t, http.MethodPost, srv.URL+"/v1/endpoints", map[string]any{
		"name":        "probe",
		"url":         receiver.URL,
		"event_types": []string{"a.b"},
	}, &ep)

	var res webhook.Result
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/endpoints/"+ep.ID+"/test", nil, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("test status = %d, want 200", resp.StatusCode)
	}
	if !res.Success || res.StatusCode != http.StatusOK {
		t.Errorf("result = %+v", res)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/endpoints/missing/test", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("test unknown endpoint status = %d, want 404", resp.StatusCode)
	}
}

func TestRetryRoute(t *testing.T) {
	srv := newTestAPI(t)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(failing.Close)

	var ep webhook.Endpoint
	doJSON(t, http.MethodPost, srv.URL+"/v1/endpoints", map[string]any{
		"name":        "down",
		"url":         failing.URL,
		"event_types": []string{"a.b"},
	}, &ep)

	doJSON(t, http.MethodPost, srv.URL+"/v1/events", map[string]any{
		"event_type": "a.b",
		"event_id":   "e_1",
		"payload":    map[string]any{},
	}, nil)

	var deliveries []webhook.Delivery
	doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/deliveries?endpoint_id=%s", srv.URL, ep.ID), nil, &deliveries)
	if len(deliveries) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(deliveries))
	}

	var d webhook.Delivery
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/deliveries/"+deliveries[0].ID+"/retry", nil, &d)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", resp.StatusCode)
	}
	if d.AttemptNumber != 2 {
		t.Errorf("attempt = %d, want 2", d.AttemptNumber)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/deliveries/missing/retry", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("retry unknown delivery status = %d, want 404", resp.StatusCode)
	}
}

func TestCleanupRoute(t *testing.T) {
	srv := newTestAPI(t)

	var res webhook.CleanupResult
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/cleanup", map[string]any{"retention_days": 30}, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/cleanup", map[string]any{"retention_days": 0}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("cleanup with zero retention status = %d, want 400", resp.StatusCode)
	}
}
