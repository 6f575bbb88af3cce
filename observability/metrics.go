package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AKSHAT-ARORA03/SahajKYC-sub001/event"
)

// meterName is the instrumentation scope for lifecycle counters.
const meterName = "github.com/AKSHAT-ARORA03/SahajKYC-sub001/observability"

// MetricsObserver records one OTel counter increment per lifecycle
// event, attributed by queue and job type. Complementary to the
// middleware metrics: these count transitions (enqueued, retrying,
// stalled, recovered) that never pass through the execution chain.
type MetricsObserver struct {
	events metric.Int64Counter
}

// NewMetricsObserver creates a MetricsObserver on the global
// MeterProvider. With no provider configured the counter is a noop.
func NewMetricsObserver() *MetricsObserver {
	return NewMetricsObserverWithMeter(otel.Meter(meterName))
}

// NewMetricsObserverWithMeter creates a MetricsObserver with the
// provided meter, for testing or multi-provider setups.
func NewMetricsObserverWithMeter(meter metric.Meter) *MetricsObserver {
	events, err := meter.Int64Counter(
		"kycq.job.events",
		metric.WithDescription("Total job lifecycle events by type"),
		metric.WithUnit("{event}"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	return &MetricsObserver{events: events}
}

// Observe implements Observer.
func (o *MetricsObserver) Observe(ev event.Event) {
	o.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event_type", string(ev.Type)),
		attribute.String("queue", ev.Queue),
		attribute.String("job_type", ev.JobType),
	))
}
