package webhook

import (
	"strings"
	"time"
)

// BackoffScheduler decides whether a failed delivery gets another attempt
// and when. The delay doubles with every attempt made: 2^attempt minutes.
type BackoffScheduler struct{}

// NextDelay returns the backoff delay after the given attempt number.
func (BackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<uint(attempt)) * time.Minute
}

// OnOutcome records the retry decision on the delivery. On success the
// delivery is terminal and next_retry_at is cleared. On failure with
// attempts remaining, next_retry_at is set from the attempt just made;
// once attempts are exhausted the delivery is terminal-failed and
// next_retry_at stays unset. Exhaustion is not an error condition.
func (s BackoffScheduler) OnOutcome(d *Delivery, ep *Endpoint, success bool, now time.Time) {
	if success {
		d.NextRetryAt = nil
		return
	}
	if d.AttemptNumber < ep.MaxRetries {
		next := now.Add(s.NextDelay(d.AttemptNumber))
		d.NextRetryAt = &next
		return
	}
	d.NextRetryAt = nil
}

// classifyReason buckets a delivery failure for retry metrics.
func classifyReason(errMsg string, status int) string {
	if errMsg != "" && status == 0 {
		lower := strings.ToLower(errMsg)
		switch {
		case strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "timeout"):
			return "timeout"
		case strings.Contains(lower, "connection refused"):
			return "connection_refused"
		case strings.Contains(lower, "no such host"), strings.Contains(lower, "dns"):
			return "dns_error"
		default:
			return "network"
		}
	}
	switch {
	case status >= 500:
		return "http_5xx"
	case status == 429:
		return "http_429"
	case status >= 400:
		return "http_4xx"
	}
	return "other"
}
