package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Lookup results recorded by Instrumented.Get.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// ReasonUnspecified labels invalidations whose context carries no reason.
const ReasonUnspecified = "unspecified"

var (
	metricsOnce   sync.Once
	lookups       metric.Int64Counter
	writes        metric.Int64Counter
	invalidations metric.Int64Counter
	lookupLatency metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/chinmina/ocpi-console/internal/cache")

		var err error
		lookups, err = meter.Int64Counter(
			"cache.lookups",
			metric.WithDescription("Cache lookups by result and the scope of the entry found"),
		)
		if err != nil {
			otel.Handle(err)
		}

		writes, err = meter.Int64Counter(
			"cache.writes",
			metric.WithDescription("Entries written, by the scope of the entry"),
		)
		if err != nil {
			otel.Handle(err)
		}

		invalidations, err = meter.Int64Counter(
			"cache.invalidations",
			metric.WithDescription("Entries discarded, by the reason given by the caller"),
		)
		if err != nil {
			otel.Handle(err)
		}

		lookupLatency, err = meter.Float64Histogram(
			"cache.lookup.duration",
			metric.WithDescription("Cache lookup duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

type reasonKey struct{}

// WithReason returns a context that labels invalidations made with it.
func WithReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

// ReasonFrom returns the invalidation reason carried by ctx.
func ReasonFrom(ctx context.Context) string {
	if reason, ok := ctx.Value(reasonKey{}).(string); ok && reason != "" {
		return reason
	}
	return ReasonUnspecified
}

// Describer derives metric attributes from a cached entry, for example the
// role a token was issued for.
type Describer[T any] func(T) []attribute.KeyValue

var _ TokenCache[string] = (*Instrumented[string])(nil)

// Instrumented records lookups, writes and invalidations of a TokenCache.
// Hits and writes are labelled by the entry's own attributes, and
// invalidations by the reason carried in the context. Each operation is
// also added as an event to the active span.
type Instrumented[T any] struct {
	wrapped  TokenCache[T]
	name     string
	describe Describer[T]
}

// NewInstrumented wraps c. describe may be nil.
func NewInstrumented[T any](c TokenCache[T], name string, describe Describer[T]) *Instrumented[T] {
	initMetrics()
	if describe == nil {
		describe = func(T) []attribute.KeyValue { return nil }
	}
	return &Instrumented[T]{
		wrapped:  c,
		name:     name,
		describe: describe,
	}
}

func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()
	value, found, err := i.wrapped.Get(ctx, key)
	elapsed := time.Since(start)

	attrs := i.attrs(attribute.String("cache.result", lookupResult(found, err)))
	if found && err == nil {
		attrs = append(attrs, i.describe(value)...)
	}

	if lookups != nil {
		lookups.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if lookupLatency != nil {
		lookupLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(i.attrs()...))
	}
	i.event(ctx, "lookup", attrs)

	return value, found, err
}

func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	err := i.wrapped.Set(ctx, key, value)

	attrs := append(i.attrs(attribute.Bool("cache.error", err != nil)), i.describe(value)...)
	if writes != nil {
		writes.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	i.event(ctx, "write", attrs)

	return err
}

// Invalidate discards key, labelling the invalidation with the reason
// attached to ctx by WithReason.
func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	err := i.wrapped.Invalidate(ctx, key)

	attrs := i.attrs(
		attribute.String("cache.reason", ReasonFrom(ctx)),
		attribute.Bool("cache.error", err != nil),
	)
	if invalidations != nil {
		invalidations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	i.event(ctx, "invalidate", attrs)

	return err
}

func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

func (i *Instrumented[T]) attrs(extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{attribute.String("cache.name", i.name)}, extra...)
}

func (i *Instrumented[T]) event(ctx context.Context, name string, attrs []attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent("cache."+name, trace.WithAttributes(attrs...))
}

func lookupResult(found bool, err error) string {
	switch {
	case err != nil:
		return ResultError
	case found:
		return ResultHit
	default:
		return ResultMiss
	}
}
