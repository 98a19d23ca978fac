// Package api exposes the webhook management operations over HTTP for the
// admin surface and the hookctl CLI.
package api

import (
	"fmt"
	"net/http"

	"github.com/vendwell/webhookd/internal/logging"
	"github.com/vendwell/webhookd/internal/webhook"
)

// Handler routes admin requests to the webhook Service.
type Handler struct {
	svc    *webhook.Service
	logger *logging.Logger
}

func NewHandler(svc *webhook.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.New("webhookd-api")
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts all admin routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/endpoints", h.createEndpoint)
	mux.HandleFunc("GET /v1/endpoints", h.listEndpoints)
	mux.HandleFunc("GET /v1/endpoints/{id}", h.getEndpoint)
	mux.HandleFunc("PATCH /v1/endpoints/{id}", h.updateEndpoint)
	mux.HandleFunc("DELETE /v1/endpoints/{id}", h.deleteEndpoint)
	mux.HandleFunc("POST /v1/endpoints/{id}/test", h.testEndpoint)
	mux.HandleFunc("GET /v1/endpoints/{id}/logs", h.endpointLogs)
	mux.HandleFunc("POST /v1/events", h.dispatchEvent)
	mux.HandleFunc("GET /v1/events", h.listEvents)
	mux.HandleFunc("GET /v1/deliveries", h.listDeliveries)
	mux.HandleFunc("POST /v1/deliveries/{id}/retry", h.retryDelivery)
	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("POST /v1/cleanup", h.cleanup)
}

func (h *Handler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var in webhook.CreateEndpointInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, fmt.Errorf("%w: %v", webhook.ErrInvalid, err))
		return
	}
	ep, err := h.svc.CreateEndpoint(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ep)
}

func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	f := webhook.EndpointFilter{
		Status:    webhook.EndpointStatus(r.URL.Query().Get("status")),
		EventType: r.URL.Query().Get("event_type"),
		IsActive:  boolParam(r, "is_active"),
		UserID:    r.URL.Query().Get("user_id"),
		VendorID:  r.URL.Query().Get("vendor_id"),
	}
	eps, err := h.svc.GetEndpoints(r.Context(), f, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eps)
}

func (h *Handler) getEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, err := h.svc.GetEndpointByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	var in webhook.UpdateEndpointInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, fmt.Errorf("%w: %v", webhook.ErrInvalid, err))
		return
	}
	ep, err := h.svc.UpdateEndpoint(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEndpoint(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) testEndpoint(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.TestEndpoint(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) endpointLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	logs, err := h.svc.GetEndpointLogs(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	var in webhook.DispatchInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, fmt.Errorf("%w: %v", webhook.ErrInvalid, err))
		return
	}
	evt, err := h.svc.DispatchEvent(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, evt)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	f := webhook.EventFilter{
		EventType:   r.URL.Query().Get("event_type"),
		SourceType:  r.URL.Query().Get("source_type"),
		UserID:      r.URL.Query().Get("user_id"),
		VendorID:    r.URL.Query().Get("vendor_id"),
		IsProcessed: boolParam(r, "is_processed"),
	}
	events, err := h.svc.GetEvents(r.Context(), f, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	f := webhook.DeliveryFilter{
		EndpointID: r.URL.Query().Get("endpoint_id"),
		EventID:    r.URL.Query().Get("event_id"),
		Status:     webhook.DeliveryStatus(r.URL.Query().Get("status")),
	}
	deliveries, err := h.svc.GetDeliveries(r.Context(), f, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveries)
}

func (h *Handler) retryDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.RetryDelivery(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetWebhookStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RetentionDays int `json:"retention_days"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, fmt.Errorf("%w: %v", webhook.ErrInvalid, err))
		return
	}
	res, err := h.svc.CleanupOldData(r.Context(), in.RetentionDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
