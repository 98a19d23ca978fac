package webhook

import "context"

// Aggregator exposes read-side rollups over endpoints, events and
// deliveries. Pure queries; no state of its own.
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// EndpointStats returns the operational rollup at query time.
func (a *Aggregator) EndpointStats(ctx context.Context) (*Stats, error) {
	return a.store.Stats(ctx)
}
