// Package memory implements the webhook Store in process memory. It backs
// tests and development mode; production uses the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vendwell/webhookd/internal/webhook"
)

// Store keeps all rows in maps guarded by one mutex. Values are copied on
// the way in and out so callers never share memory with the store.
type Store struct {
	mu         sync.Mutex
	endpoints  map[string]*webhook.Endpoint
	events     map[string]*webhook.Event
	deliveries map[string]*webhook.Delivery
	logs       []*webhook.LogEntry
}

var _ webhook.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		endpoints:  make(map[string]*webhook.Endpoint),
		events:     make(map[string]*webhook.Event),
		deliveries: make(map[string]*webhook.Delivery),
	}
}

// --- endpoints ---

func (s *Store) CreateEndpoint(_ context.Context, ep *webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

func (s *Store) GetEndpoint(_ context.Context, id string) (*webhook.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	return copyEndpoint(ep), nil
}

func (s *Store) UpdateEndpoint(_ context.Context, ep *webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[ep.ID]; !ok {
		return webhook.ErrNotFound
	}
	s.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

func (s *Store) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return webhook.ErrNotFound
	}
	delete(s.endpoints, id)
	return nil
}

func (s *Store) ListEndpoints(_ context.Context, f webhook.EndpointFilter, limit, offset int) ([]*webhook.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*webhook.Endpoint
	for _, ep := range s.endpoints {
		if f.Status != "" && ep.Status != f.Status {
			continue
		}
		if f.EventType != "" && !ep.SubscribedTo(f.EventType) {
			continue
		}
		if f.IsActive != nil && ep.IsActive != *f.IsActive {
			continue
		}
		if f.UserID != "" && ep.UserID != f.UserID {
			continue
		}
		if f.VendorID != "" && ep.VendorID != f.VendorID {
			continue
		}
		out = append(out, copyEndpoint(ep))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *Store) RecordEndpointOutcome(_ context.Context, id string, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return webhook.ErrNotFound
	}
	t := at
	if success {
		ep.SuccessCount++
		ep.LastSuccessAt = &t
	} else {
		ep.FailureCount++
		ep.LastFailureAt = &t
	}
	ep.UpdatedAt = at
	return nil
}

// --- events ---

func (s *Store) CreateEvent(_ context.Context, evt *webhook.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[evt.ID] = copyEvent(evt)
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[id]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	return copyEvent(evt), nil
}

func (s *Store) MarkEventProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[id]
	if !ok {
		return webhook.ErrNotFound
	}
	evt.IsProcessed = true
	return nil
}

func (s *Store) ListEvents(_ context.Context, f webhook.EventFilter, limit, offset int) ([]*webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*webhook.Event
	for _, evt := range s.events {
		if f.EventType != "" && evt.EventType != f.EventType {
			continue
		}
		if f.SourceType != "" && evt.SourceType != f.SourceType {
			continue
		}
		if f.UserID != "" && evt.UserID != f.UserID {
			continue
		}
		if f.VendorID != "" && evt.VendorID != f.VendorID {
			continue
		}
		if f.IsProcessed != nil && evt.IsProcessed != *f.IsProcessed {
			continue
		}
		out = append(out, copyEvent(evt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// --- deliveries ---

func (s *Store) CreateDelivery(_ context.Context, d *webhook.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = copyDelivery(d)
	return nil
}

func (s *Store) GetDelivery(_ context.Context, id string) (*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	return copyDelivery(d), nil
}

func (s *Store) UpdateDelivery(_ context.Context, d *webhook.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; !ok {
		return webhook.ErrNotFound
	}
	s.deliveries[d.ID] = copyDelivery(d)
	return nil
}

func (s *Store) ListDeliveries(_ context.Context, f webhook.DeliveryFilter, limit, offset int) ([]*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*webhook.Delivery
	for _, d := range s.deliveries {
		if f.EndpointID != "" && d.EndpointID != f.EndpointID {
			continue
		}
		if f.EventID != "" && d.EventID != f.EventID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, copyDelivery(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *Store) DueDeliveries(_ context.Context, now time.Time, limit int) ([]*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*webhook.Delivery
	for _, d := range s.deliveries {
		if d.Status == webhook.DeliveryFailed && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, copyDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ClaimRetry(_ context.Context, id string) (*webhook.Delivery, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, false, webhook.ErrNotFound
	}
	if !d.AwaitingRetry() {
		return copyDelivery(d), false, nil
	}
	d.Status = webhook.DeliveryPending
	d.AttemptNumber++
	d.NextRetryAt = nil
	d.UpdatedAt = time.Now().UTC()
	return copyDelivery(d), true, nil
}

// --- logs ---

func (s *Store) AppendLog(_ context.Context, entry *webhook.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *Store) ListLogs(_ context.Context, endpointID string, limit, offset int) ([]*webhook.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*webhook.LogEntry
	for _, entry := range s.logs {
		if entry.EndpointID == endpointID {
			cp := *entry
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// --- stats and retention ---

func (s *Store) Stats(_ context.Context) (*webhook.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &webhook.Stats{
		ByStatus:       make(map[string]int64),
		TotalEndpoints: int64(len(s.endpoints)),
		TotalEvents:    int64(len(s.events)),
	}
	for _, d := range s.deliveries {
		st.ByStatus[string(d.Status)]++
		st.TotalDeliveries++
	}
	if st.TotalDeliveries > 0 {
		st.SuccessRate = float64(st.ByStatus[string(webhook.DeliverySuccess)]) / float64(st.TotalDeliveries)
	}
	return st, nil
}

func (s *Store) Cleanup(_ context.Context, olderThan time.Time) (*webhook.CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &webhook.CleanupResult{}
	for id, d := range s.deliveries {
		if d.CreatedAt.Before(olderThan) {
			delete(s.deliveries, id)
			res.DeletedDeliveries++
		}
	}
	for id, evt := range s.events {
		if !evt.CreatedAt.Before(olderThan) {
			continue
		}
		referenced := false
		for _, d := range s.deliveries {
			if d.EventID == id {
				referenced = true
				break
			}
		}
		if !referenced {
			delete(s.events, id)
			res.DeletedEvents++
		}
	}
	kept := s.logs[:0]
	for _, entry := range s.logs {
		if entry.CreatedAt.Before(olderThan) {
			res.DeletedLogs++
			continue
		}
		kept = append(kept, entry)
	}
	s.logs = kept
	return res, nil
}

// --- helpers ---

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func copyEndpoint(ep *webhook.Endpoint) *webhook.Endpoint {
	cp := *ep
	cp.EventTypes = append([]string(nil), ep.EventTypes...)
	cp.Filters = copyMap(ep.Filters)
	cp.Headers = copyStringMap(ep.Headers)
	cp.AuthCredentials = copyStringMap(ep.AuthCredentials)
	return &cp
}

func copyEvent(evt *webhook.Event) *webhook.Event {
	cp := *evt
	cp.Payload = copyMap(evt.Payload)
	cp.Metadata = copyMap(evt.Metadata)
	return &cp
}

func copyDelivery(d *webhook.Delivery) *webhook.Delivery {
	cp := *d
	cp.RequestHeaders = copyStringMap(d.RequestHeaders)
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
