package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vendwell/webhookd/internal/logging"
	"github.com/vendwell/webhookd/internal/metrics"
	"github.com/vendwell/webhookd/internal/tracing"
)

// Dispatcher persists events and fans them out to subscribed endpoints.
type Dispatcher struct {
	store   Store
	engine  *Engine
	filters FilterEvaluator
	logger  *logging.Logger
}

func NewDispatcher(store Store, engine *Engine, filters FilterEvaluator, logger *logging.Logger) *Dispatcher {
	if filters == nil {
		filters = PassAllFilter{}
	}
	if logger == nil {
		logger = logging.New("webhookd")
	}
	return &Dispatcher{store: store, engine: engine, filters: filters, logger: logger}
}

// Dispatch persists the event, schedules one delivery per matching active
// endpoint concurrently and marks the event processed once every schedule
// has been issued. Delivery failures never abort the dispatch: the created
// event is always returned. Zero matching endpoints is a valid outcome.
func (dp *Dispatcher) Dispatch(ctx context.Context, in DispatchInput) (*Event, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatcher.dispatch",
		attribute.String("event_type", in.EventType),
		attribute.String("idempotency_key", in.EventID),
	)
	defer span.End()

	if in.EventType == "" || in.EventID == "" || in.Payload == nil {
		err := fmt.Errorf("%w: event_type, event_id and payload are required", ErrInvalid)
		tracing.SetSpanError(ctx, err)
		return nil, err
	}

	evt := &Event{
		ID:         uuid.NewString(),
		EventType:  in.EventType,
		EventID:    in.EventID,
		Payload:    in.Payload,
		Metadata:   in.Metadata,
		SourceID:   in.SourceID,
		SourceType: in.SourceType,
		UserID:     in.UserID,
		VendorID:   in.VendorID,
		CreatedAt:  time.Now().UTC(),
	}

	tracing.AddSpanEvent(ctx, "store.create_event")
	if err := dp.store.CreateEvent(ctx, evt); err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, fmt.Errorf("create event: %w", err)
	}
	span.SetAttributes(attribute.String("event_id", evt.ID))
	metrics.EventsDispatchedTotal.WithLabelValues(evt.EventType).Inc()

	active := true
	tracing.AddSpanEvent(ctx, "store.list_subscribers")
	endpoints, err := dp.store.ListEndpoints(ctx, EndpointFilter{
		EventType: evt.EventType,
		Status:    StatusActive,
		IsActive:  &active,
	}, 0, 0)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	targets := endpoints[:0]
	for _, ep := range endpoints {
		if dp.filters.Match(ep.Filters, evt) {
			targets = append(targets, ep)
		}
	}
	span.SetAttributes(attribute.Int("subscribers_count", len(targets)))

	// Fan out as independent concurrent tasks: one slow or unreachable
	// endpoint must not delay delivery to the others, and a failure for
	// one must not abort scheduling for the rest.
	var wg sync.WaitGroup
	for _, ep := range targets {
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			if _, err := dp.engine.Schedule(ctx, ep, evt); err != nil {
				dp.logger.WithContext(ctx).WithEvent(evt.ID).WithEndpoint(ep.ID).
					WithError(err).Error("schedule delivery failed")
			}
		}(ep)
	}
	wg.Wait()

	// Processed means "all schedules issued", not "all deliveries done".
	tracing.AddSpanEvent(ctx, "store.mark_processed")
	if err := dp.store.MarkEventProcessed(ctx, evt.ID); err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, fmt.Errorf("mark event processed: %w", err)
	}
	evt.IsProcessed = true

	dp.logger.WithContext(ctx).WithEvent(evt.ID).WithFields(map[string]any{
		"event_type": evt.EventType,
		"fanout":     len(targets),
	}).Info("event dispatched")
	return evt, nil
}
