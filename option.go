package mom

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultName is the middleware name used when none is given. It names the
// logger component and the OpenTelemetry tracer and meter.
var DefaultName = "mom"

// options holds configuration for a middleware (unexported)
type options struct {
	name           string
	logger         *slog.Logger
	tracingEnabled bool
	metricsEnabled bool
	metrics        Metrics
	tracer         trace.Tracer
	locking        bool
	segmentPolicy  SegmentPolicy
}

// Option configures a Middleware
type Option func(*options)

// WithName sets the middleware name
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracing enables/disables OpenTelemetry spans for publish and delivery
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables/disables metrics. A nil Metrics keeps the default
// OpenTelemetry recorder.
func WithMetrics(enabled bool, metrics Metrics) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
		o.metrics = metrics
	}
}

// WithLocking serialises tree mutation, publish and queue access behind one
// mutex so the middleware can be shared between goroutines. Handlers must
// not call back into the same middleware while locking is enabled.
func WithLocking(enabled bool) Option {
	return func(o *options) {
		o.locking = enabled
	}
}

// WithSegmentPolicy sets how empty path segments are handled.
// Default is RejectEmptySegments.
func WithSegmentPolicy(p SegmentPolicy) Option {
	return func(o *options) {
		o.segmentPolicy = p
	}
}

// newOptions creates options with defaults and applies provided options
func newOptions(opts ...Option) *options {
	o := &options{
		name:           DefaultName,
		tracingEnabled: true,
		metricsEnabled: true,
		segmentPolicy:  RejectEmptySegments,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = Logger("mom>" + o.name)
	}
	if o.tracingEnabled {
		o.tracer = otel.Tracer(o.name)
	}
	switch {
	case !o.metricsEnabled:
		o.metrics = noopMetrics{}
	case o.metrics == nil:
		o.metrics = NewOtelMetrics(o.name)
	}
	return o
}

// subscribeOptions holds configuration for one subscriber (unexported)
type subscribeOptions[T any] struct {
	name         string
	interceptors []Interceptor[T]
}

// SubscribeOption configures a subscriber
type SubscribeOption[T any] func(*subscribeOptions[T])

// WithSubscriberName labels the subscriber in logs, errors and snapshots
func WithSubscriberName[T any](name string) SubscribeOption[T] {
	return func(o *subscribeOptions[T]) {
		o.name = name
	}
}

// WithInterceptors wraps a callback handler. The first interceptor is the
// outermost. Ignored for Queue subscribers.
func WithInterceptors[T any](interceptors ...Interceptor[T]) SubscribeOption[T] {
	return func(o *subscribeOptions[T]) {
		o.interceptors = append(o.interceptors, interceptors...)
	}
}

func newSubscribeOptions[T any](opts ...SubscribeOption[T]) *subscribeOptions[T] {
	o := &subscribeOptions[T]{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
