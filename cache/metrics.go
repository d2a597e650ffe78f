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

var (
	tracer = otel.Tracer("ccac.cache")
	meter  = otel.Meter("ccac.cache")
)

var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheComputes   metric.Int64Counter
	computeDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"ccac_cache_hits_total",
			metric.WithDescription("Total number of verdicts served from the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"ccac_cache_misses_total",
			metric.WithDescription("Total number of cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheComputes, err = meter.Int64Counter(
			"ccac_cache_computes_total",
			metric.WithDescription("Total number of solver runs made on behalf of the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		computeDuration, err = meter.Float64Histogram(
			"ccac_cache_compute_duration_seconds",
			metric.WithDescription("Duration of solver runs made on behalf of the cache"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordCompute(ctx context.Context, d time.Duration, result string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheComputes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	computeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("result", result)))
}

func startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Cache."+operation,
		trace.WithAttributes(
			attribute.String("cache.operation", operation),
			attribute.String("cache.key", key),
		),
	)
}
