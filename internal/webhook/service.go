package webhook

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vendwell/webhookd/internal/logging"
	"github.com/vendwell/webhookd/internal/tracing"
)

// Service is the management surface consumed by the REST/GraphQL layer of
// the surrounding application. Callers are assumed already authorized;
// ownership scoping arrives through the filters they supply.
type Service struct {
	store      Store
	registry   *Registry
	dispatcher *Dispatcher
	engine     *Engine
	stats      *Aggregator
	logger     *logging.Logger
}

// ServiceConfig wires a Service from its store and tunables.
type ServiceConfig struct {
	Defaults RegistryDefaults
	Engine   EngineConfig
	Filters  FilterEvaluator
	DLQ      DeadLetterPublisher
	Logger   *logging.Logger
}

func NewService(store Store, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("webhookd")
	}
	registry := NewRegistry(store, cfg.Defaults, logger)
	engine := NewEngine(store, registry, cfg.DLQ, cfg.Engine, logger)
	dispatcher := NewDispatcher(store, engine, cfg.Filters, logger)
	return &Service{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		engine:     engine,
		stats:      NewAggregator(store),
		logger:     logger,
	}
}

// Endpoint management

func (s *Service) CreateEndpoint(ctx context.Context, in CreateEndpointInput) (*Endpoint, error) {
	return s.registry.Create(ctx, in)
}

func (s *Service) GetEndpoints(ctx context.Context, f EndpointFilter, limit, offset int) ([]*Endpoint, error) {
	return s.registry.List(ctx, f, limit, offset)
}

func (s *Service) GetEndpointByID(ctx context.Context, id string) (*Endpoint, error) {
	return s.registry.Get(ctx, id)
}

func (s *Service) UpdateEndpoint(ctx context.Context, id string, in UpdateEndpointInput) (*Endpoint, error) {
	return s.registry.Update(ctx, id, in)
}

func (s *Service) DeleteEndpoint(ctx context.Context, id string) error {
	return s.registry.Delete(ctx, id)
}

// TestEndpoint sends a synthetic system.test event through the delivery
// path. No Event row is created; the result is returned directly.
func (s *Service) TestEndpoint(ctx context.Context, id string) (Result, error) {
	ep, err := s.registry.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return s.engine.Test(ctx, ep)
}

// Events and deliveries

func (s *Service) DispatchEvent(ctx context.Context, in DispatchInput) (*Event, error) {
	return s.dispatcher.Dispatch(ctx, in)
}

func (s *Service) GetEvents(ctx context.Context, f EventFilter, limit, offset int) ([]*Event, error) {
	return s.store.ListEvents(ctx, f, limit, offset)
}

func (s *Service) GetDeliveries(ctx context.Context, f DeliveryFilter, limit, offset int) ([]*Delivery, error) {
	return s.store.ListDeliveries(ctx, f, limit, offset)
}

// RetryDelivery re-runs the attempt logic for an awaiting-retry delivery
// with attempt_number+1. Calling it on a delivery that is not awaiting
// retry is a no-op success reporting the existing state, not an error.
func (s *Service) RetryDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	ctx, span := tracing.StartSpan(ctx, "service.retry_delivery",
		attribute.String("delivery_id", deliveryID),
	)
	defer span.End()

	// The claim is atomic: two schedulers firing on the same overdue row
	// race on it and only one proceeds.
	d, claimed, err := s.store.ClaimRetry(ctx, deliveryID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, err
	}
	if !claimed {
		return d, nil
	}

	ep, err := s.store.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("load endpoint for retry: %w", err)
	}
	evt, err := s.store.GetEvent(ctx, d.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event for retry: %w", err)
	}

	if _, err := s.engine.Attempt(ctx, ep, evt, d); err != nil {
		return nil, err
	}
	return d, nil
}

// RetryDue sweeps deliveries whose next_retry_at has passed and retries
// each, at most concurrency in flight at once. It is the driving loop
// behind the cron scheduler.
func (s *Service) RetryDue(ctx context.Context, now time.Time, limit, concurrency int) (int, error) {
	due, err := s.store.DueDeliveries(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due deliveries: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var retried atomic.Int64
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, d := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.RetryDelivery(ctx, id); err != nil {
				s.logger.WithContext(ctx).WithDelivery(id).WithError(err).Error("retry sweep failed")
				return
			}
			retried.Add(1)
		}(d.ID)
	}
	wg.Wait()
	return int(retried.Load()), nil
}

// Observability and retention

func (s *Service) GetEndpointLogs(ctx context.Context, endpointID string, limit, offset int) ([]*LogEntry, error) {
	if _, err := s.registry.Get(ctx, endpointID); err != nil {
		return nil, err
	}
	return s.store.ListLogs(ctx, endpointID, limit, offset)
}

func (s *Service) GetWebhookStats(ctx context.Context) (*Stats, error) {
	return s.stats.EndpointStats(ctx)
}

// CleanupOldData removes events, deliveries and logs older than the
// retention window. Endpoints are never touched.
func (s *Service) CleanupOldData(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("%w: retention_days must be >= 1", ErrInvalid)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.store.Cleanup(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"deleted_events":     res.DeletedEvents,
		"deleted_deliveries": res.DeletedDeliveries,
		"deleted_logs":       res.DeletedLogs,
		"retention_days":     retentionDays,
	}).Info("retention cleanup completed")
	return res, nil
}
