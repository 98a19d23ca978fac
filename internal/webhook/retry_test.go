package webhook

import (
	"testing"
	"time"
)

func TestNextDelayDoubles(t *testing.T) {
	var s BackoffScheduler

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 16 * time.Minute},
		{0, 2 * time.Minute}, // clamped to attempt 1
	}
	for _, tt := range tests {
		if got := s.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestOnOutcome(t *testing.T) {
	var s BackoffScheduler
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ep := &Endpoint{MaxRetries: 3}

	t.Run("success clears retry", func(t *testing.T) {
		later := now.Add(time.Hour)
		d := &Delivery{AttemptNumber: 2, NextRetryAt: &later}
		s.OnOutcome(d, ep, true, now)
		if d.NextRetryAt != nil {
			t.Error("NextRetryAt should be nil after success")
		}
	})

	t.Run("failure with attempts left schedules retry", func(t *testing.T) {
		d := &Delivery{AttemptNumber: 1}
		s.OnOutcome(d, ep, false, now)
		if d.NextRetryAt == nil {
			t.Fatal("NextRetryAt should be set")
		}
		if want := now.Add(2 * time.Minute); !d.NextRetryAt.Equal(want) {
			t.Errorf("NextRetryAt = %v, want %v", d.NextRetryAt, want)
		}
	})

	t.Run("second failure doubles the delay", func(t *testing.T) {
		d := &Delivery{AttemptNumber: 2}
		s.OnOutcome(d, ep, false, now)
		if want := now.Add(4 * time.Minute); d.NextRetryAt == nil || !d.NextRetryAt.Equal(want) {
			t.Errorf("NextRetryAt = %v, want %v", d.NextRetryAt, want)
		}
	})

	t.Run("exhaustion leaves no retry", func(t *testing.T) {
		d := &Delivery{AttemptNumber: 3}
		s.OnOutcome(d, ep, false, now)
		if d.NextRetryAt != nil {
			t.Error("NextRetryAt should stay nil once attempts are exhausted")
		}
	})
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		status int
		want   string
	}{
		{"context deadline", "context deadline exceeded", 0, "timeout"},
		{"client timeout", "Client.Timeout exceeded while awaiting headers", 0, "timeout"},
		{"refused", `dial tcp 10.0.0.1:443: connect: connection refused`, 0, "connection_refused"},
		{"dns", "lookup hooks.invalid: no such host", 0, "dns_error"},
		{"other network", "EOF", 0, "network"},
		{"server error", "unexpected status 503", 503, "http_5xx"},
		{"rate limited", "unexpected status 429", 429, "http_429"},
		{"client error", "unexpected status 404", 404, "http_4xx"},
		{"success-ish", "", 200, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyReason(tt.errMsg, tt.status); got != tt.want {
				t.Errorf("classifyReason(%q, %d) = %q, want %q", tt.errMsg, tt.status, got, tt.want)
			}
		})
	}
}

func TestDeliveryAwaitingRetry(t *testing.T) {
	at := time.Now()
	tests := []struct {
		name string
		d    Delivery
		want bool
	}{
		{"failed with retry", Delivery{Status: DeliveryFailed, NextRetryAt: &at}, true},
		{"failed terminal", Delivery{Status: DeliveryFailed}, false},
		{"success", Delivery{Status: DeliverySuccess, NextRetryAt: &at}, false},
		{"pending", Delivery{Status: DeliveryPending}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.AwaitingRetry(); got != tt.want {
				t.Errorf("AwaitingRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}
