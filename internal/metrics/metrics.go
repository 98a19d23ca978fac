package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhookd_events_dispatched_total",
			Help: "Total number of events dispatched.",
		},
		[]string{"event_type"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhookd_deliveries_total",
			Help: "Total number of delivery attempts by outcome.",
		},
		[]string{"status"}, // success | failed
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhookd_delivery_latency_seconds",
			Help:    "Latency of outbound webhook HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhookd_retries_total",
			Help: "Total number of delivery retries scheduled, by failure reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	ExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhookd_deliveries_exhausted_total",
			Help: "Total number of deliveries that exhausted all retry attempts.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(EventsDispatchedTotal, DeliveriesTotal, DeliveryLatency, RetriesTotal, ExhaustedTotal)
}
