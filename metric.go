package mom

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
)

// Reasons reported to Metrics.Dropped
const (
	DropNoSignal  = "no_signal"
	DropNilMsg    = "nil_message"
	DropDestroyed = "destroyed"
	DropClosed    = "closed"
)

// Metrics records middleware activity. Implementations must be cheap; they
// are called on the publish path.
type Metrics interface {
	// Published a message entered a signal's fan-out
	Published(ctx context.Context, signal string)
	// Delivered a message was handed to one subscriber
	Delivered(ctx context.Context, signal string, mode DeliveryMode)
	// Pruned an expired queue subscriber was removed
	Pruned(ctx context.Context, signal string)
	// Dropped a publish was rejected and its message released
	Dropped(ctx context.Context, path string, reason string)
	// Subscribed a subscriber was added
	Subscribed(ctx context.Context, signal string, mode DeliveryMode)
}

var (
	_ Metrics = (*otelMetrics)(nil)
	_ Metrics = (*PrometheusMetrics)(nil)
	_ Metrics = noopMetrics{}
)

type otelMetrics struct {
	published  metric.Int64Counter
	delivered  metric.Int64Counter
	pruned     metric.Int64Counter
	dropped    metric.Int64Counter
	subscribed metric.Int64Counter
}

// NewOtelMetrics records metrics with the global OpenTelemetry meter
// provider under the given meter name.
func NewOtelMetrics(name string) Metrics {
	meter := otel.Meter(name)
	published, _ := meter.Int64Counter("mom.published",
		metric.WithDescription("Number of messages published to a signal"),
		metric.WithUnit("{message}"))
	delivered, _ := meter.Int64Counter("mom.delivered",
		metric.WithDescription("Number of deliveries to subscribers"),
		metric.WithUnit("{message}"))
	pruned, _ := meter.Int64Counter("mom.pruned",
		metric.WithDescription("Number of expired queue subscribers removed"),
		metric.WithUnit("{subscriber}"))
	dropped, _ := meter.Int64Counter("mom.dropped",
		metric.WithDescription("Number of rejected publishes"),
		metric.WithUnit("{message}"))
	subscribed, _ := meter.Int64Counter("mom.subscribed",
		metric.WithDescription("Number of subscribers added"),
		metric.WithUnit("{subscriber}"))
	return &otelMetrics{
		published:  published,
		delivered:  delivered,
		pruned:     pruned,
		dropped:    dropped,
		subscribed: subscribed,
	}
}

func (m *otelMetrics) Published(ctx context.Context, signal string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", signal)))
}

func (m *otelMetrics) Delivered(ctx context.Context, signal string, mode DeliveryMode) {
	m.delivered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("signal", signal),
		attribute.String("mode", mode.String())))
}

func (m *otelMetrics) Pruned(ctx context.Context, signal string) {
	m.pruned.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", signal)))
}

func (m *otelMetrics) Dropped(ctx context.Context, path string, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("signal", path),
		attribute.String("reason", reason)))
}

func (m *otelMetrics) Subscribed(ctx context.Context, signal string, mode DeliveryMode) {
	m.subscribed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("signal", signal),
		attribute.String("mode", mode.String())))
}

// PrometheusMetrics records metrics as Prometheus counters. Register it
// before use.
type PrometheusMetrics struct {
	published  *prometheus.CounterVec
	delivered  *prometheus.CounterVec
	pruned     *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	subscribed *prometheus.CounterVec
}

// NewPrometheusMetrics creates Prometheus counters in the given namespace
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = DefaultName
	}
	return &PrometheusMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Total messages published",
		}, []string{"signal"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_total",
			Help:      "Total deliveries to subscribers",
		}, []string{"signal", "mode"}),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_total",
			Help:      "Total expired queue subscribers removed",
		}, []string{"signal"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Total rejected publishes",
		}, []string{"reason"}),
		subscribed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribed_total",
			Help:      "Total subscribers added",
		}, []string{"signal", "mode"}),
	}
}

// Register registers every counter with r, or with the default registerer
// if r is nil.
func (m *PrometheusMetrics) Register(r prometheus.Registerer) error {
	var mErr error
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{m.published, m.delivered, m.pruned, m.dropped, m.subscribed} {
		if err := r.Register(c); err != nil {
			mErr = multierr.Append(mErr, err)
		}
	}
	return mErr
}

func (m *PrometheusMetrics) Published(_ context.Context, signal string) {
	m.published.WithLabelValues(signal).Inc()
}

func (m *PrometheusMetrics) Delivered(_ context.Context, signal string, mode DeliveryMode) {
	m.delivered.WithLabelValues(signal, mode.String()).Inc()
}

func (m *PrometheusMetrics) Pruned(_ context.Context, signal string) {
	m.pruned.WithLabelValues(signal).Inc()
}

func (m *PrometheusMetrics) Dropped(_ context.Context, _ string, reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) Subscribed(_ context.Context, signal string, mode DeliveryMode) {
	m.subscribed.WithLabelValues(signal, mode.String()).Inc()
}

type noopMetrics struct{}

func (noopMetrics) Published(context.Context, string)                {}
func (noopMetrics) Delivered(context.Context, string, DeliveryMode)  {}
func (noopMetrics) Pruned(context.Context, string)                   {}
func (noopMetrics) Dropped(context.Context, string, string)          {}
func (noopMetrics) Subscribed(context.Context, string, DeliveryMode) {}
