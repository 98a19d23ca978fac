package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendwell/webhookd/internal/webhook"
)

func TestClaimRetry(t *testing.T) {
	s := New()
	ctx := context.Background()
	due := time.Now().UTC().Add(-time.Minute)

	if err := s.CreateDelivery(ctx, &webhook.Delivery{
		ID:            "d1",
		Status:        webhook.DeliveryFailed,
		AttemptNumber: 1,
		NextRetryAt:   &due,
	}); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}

	d, claimed, err := s.ClaimRetry(ctx, "d1")
	if err != nil {
		t.Fatalf("ClaimRetry: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}
	if d.Status != webhook.DeliveryPending || d.AttemptNumber != 2 || d.NextRetryAt != nil {
		t.Errorf("claimed delivery = %+v", d)
	}

	// second claim loses the race
	d, claimed, err = s.ClaimRetry(ctx, "d1")
	if err != nil {
		t.Fatalf("ClaimRetry: %v", err)
	}
	if claimed {
		t.Error("second claim must be a no-op")
	}
	if d.AttemptNumber != 2 {
		t.Errorf("no-op claim returned attempt %d, want 2", d.AttemptNumber)
	}

	if _, _, err := s.ClaimRetry(ctx, "missing"); !errors.Is(err, webhook.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestClaimRetryRejectsNonRetryable(t *testing.T) {
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		d    webhook.Delivery
	}{
		{"success", webhook.Delivery{ID: "a", Status: webhook.DeliverySuccess}},
		{"terminal failed", webhook.Delivery{ID: "b", Status: webhook.DeliveryFailed}},
		{"pending", webhook.Delivery{ID: "c", Status: webhook.DeliveryPending}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.CreateDelivery(ctx, &tt.d); err != nil {
				t.Fatalf("CreateDelivery: %v", err)
			}
			if _, claimed, _ := s.ClaimRetry(ctx, tt.d.ID); claimed {
				t.Error("claim must fail for a delivery not awaiting retry")
			}
		})
	}
}

func TestDueDeliveries(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	mk := func(id string, at *time.Time, status webhook.DeliveryStatus) {
		if err := s.CreateDelivery(ctx, &webhook.Delivery{ID: id, Status: status, NextRetryAt: at}); err != nil {
			t.Fatalf("CreateDelivery(%s): %v", id, err)
		}
	}
	mk("due", &past, webhook.DeliveryFailed)
	mk("not-yet", &future, webhook.DeliveryFailed)
	mk("no-retry", nil, webhook.DeliveryFailed)
	mk("succeeded", &past, webhook.DeliverySuccess)

	due, err := s.DueDeliveries(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueDeliveries: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Errorf("due = %+v, want only the overdue failed delivery", due)
	}
}

func TestCleanupKeepsReferencedEvents(t *testing.T) {
	s := New()
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -60)

	_ = s.CreateEvent(ctx, &webhook.Event{ID: "referenced", CreatedAt: old})
	_ = s.CreateEvent(ctx, &webhook.Event{ID: "orphan", CreatedAt: old})
	// a recent delivery still points at the old event
	_ = s.CreateDelivery(ctx, &webhook.Delivery{ID: "d1", EventID: "referenced", CreatedAt: time.Now().UTC()})

	res, err := s.Cleanup(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.DeletedEvents != 1 {
		t.Errorf("DeletedEvents = %d, want 1", res.DeletedEvents)
	}
	if _, err := s.GetEvent(ctx, "referenced"); err != nil {
		t.Error("referenced event must survive cleanup")
	}
	if _, err := s.GetEvent(ctx, "orphan"); !errors.Is(err, webhook.ErrNotFound) {
		t.Error("orphan event should be removed")
	}
}

func TestListEndpointsPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if err := s.CreateEndpoint(ctx, &webhook.Endpoint{
			ID:        string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("CreateEndpoint: %v", err)
		}
	}

	page1, err := s.ListEndpoints(ctx, webhook.EndpointFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page1 = %d rows, want 2", len(page1))
	}
	// newest first
	if page1[0].ID != "e" || page1[1].ID != "d" {
		t.Errorf("page1 = [%s %s], want [e d]", page1[0].ID, page1[1].ID)
	}

	page3, err := s.ListEndpoints(ctx, webhook.EndpointFilter{}, 2, 4)
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(page3) != 1 || page3[0].ID != "a" {
		t.Errorf("page3 = %+v, want the oldest row", page3)
	}
}

func TestStoreCopiesValues(t *testing.T) {
	s := New()
	ctx := context.Background()

	ep := &webhook.Endpoint{ID: "e1", Headers: map[string]string{"k": "v"}}
	if err := s.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
	ep.Headers["k"] = "mutated"

	got, err := s.GetEndpoint(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEndpoint: %v", err)
	}
	if got.Headers["k"] != "v" {
		t.Error("store must not share memory with callers")
	}
	got.Headers["k"] = "mutated-again"

	again, _ := s.GetEndpoint(ctx, "e1")
	if again.Headers["k"] != "v" {
		t.Error("returned values must be independent copies")
	}
}
