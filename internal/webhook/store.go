package webhook

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by stores and services. Delivery failures are
// never errors on this surface; they are captured into Delivery rows.
var (
	ErrNotFound   = errors.New("webhook: not found")
	ErrInvalidURL = errors.New("webhook: url must be http or https")
	ErrInvalid    = errors.New("webhook: invalid input")
)

// Store is the persistence boundary of the subsystem. The ORM-backed
// repositories of the surrounding application satisfy it in production;
// an in-memory implementation backs tests. Storage failures are the one
// error class that propagates out of the dispatch path.
type Store interface {
	// Endpoints
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	ListEndpoints(ctx context.Context, f EndpointFilter, limit, offset int) ([]*Endpoint, error)
	// RecordEndpointOutcome atomically bumps success/failure counters and
	// the matching last-timestamp. Concurrent calls must not lose updates.
	RecordEndpointOutcome(ctx context.Context, id string, success bool, at time.Time) error

	// Events
	CreateEvent(ctx context.Context, evt *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	MarkEventProcessed(ctx context.Context, id string) error
	ListEvents(ctx context.Context, f EventFilter, limit, offset int) ([]*Event, error)

	// Deliveries
	CreateDelivery(ctx context.Context, d *Delivery) error
	GetDelivery(ctx context.Context, id string) (*Delivery, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, f DeliveryFilter, limit, offset int) ([]*Delivery, error)
	// DueDeliveries returns failed deliveries whose next_retry_at has
	// passed, oldest first.
	DueDeliveries(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)
	// ClaimRetry atomically moves an awaiting-retry delivery back to
	// pending with attempt_number+1 and next_retry_at cleared. It returns
	// claimed=false when the delivery is not awaiting retry, which guards
	// against two schedulers firing on the same overdue row.
	ClaimRetry(ctx context.Context, id string) (d *Delivery, claimed bool, err error)

	// Logs
	AppendLog(ctx context.Context, entry *LogEntry) error
	ListLogs(ctx context.Context, endpointID string, limit, offset int) ([]*LogEntry, error)

	// Stats and retention
	Stats(ctx context.Context) (*Stats, error)
	Cleanup(ctx context.Context, olderThan time.Time) (*CleanupResult, error)
}
