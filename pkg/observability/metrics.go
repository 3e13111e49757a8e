package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

const (
	metricOperationsTotal   = "narrowdown.store.operations.total"
	metricOperationDuration = "narrowdown.store.operation.duration.seconds"
	metricErrorsTotal       = "narrowdown.store.errors.total"
	metricQueryCandidates   = "narrowdown.lsh.query.candidates"

	attrOp     = "op"
	attrStatus = "status"

	// StatusOK marks a successful operation.
	StatusOK = "ok"
	// StatusError marks a failed operation.
	StatusError = "error"
)

// durationBucketBoundaries covers 50µs to 10s: in-memory operations land in
// the first buckets, remote backends further up.
var durationBucketBoundaries = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10,
}

// candidateBucketBoundaries spans empty results to large buckets.
var candidateBucketBoundaries = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000}

// StoreMetrics holds the OTel instruments for similarity store operations.
type StoreMetrics struct {
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	errorsTotal       metric.Int64Counter
	queryCandidates   metric.Float64Histogram
}

// NewStoreMetrics creates the store instruments from the given meter. All
// instruments are attempted; the returned error joins every failure.
func NewStoreMetrics(mt metric.Meter) (*StoreMetrics, error) {
	var errs []error

	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := mt.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", name, err))
		}

		return c
	}

	// histogram creates a Float64Histogram with explicit bucket boundaries.
	histogram := func(name, desc, unit string, bounds []float64) metric.Float64Histogram {
		h, err := mt.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit(unit),
			metric.WithExplicitBucketBoundaries(bounds...),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", name, err))
		}

		return h
	}

	sm := &StoreMetrics{
		operationsTotal: counter(metricOperationsTotal,
			"Total number of store operations", "{operation}"),
		operationDuration: histogram(metricOperationDuration,
			"Store operation duration in seconds", "s", durationBucketBoundaries),
		errorsTotal: counter(metricErrorsTotal,
			"Total number of failed store operations", "{error}"),
		queryCandidates: histogram(metricQueryCandidates,
			"Number of LSH candidates returned per query", "{document}", candidateBucketBoundaries),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return sm, nil
}

// NoopStoreMetrics returns instruments that record nothing.
func NoopStoreMetrics() *StoreMetrics {
	sm, _ := NewStoreMetrics(noopmetric.NewMeterProvider().Meter(meterName)) //nolint:errcheck // noop instruments never fail.

	return sm
}

// RecordOperation records a completed operation. A non-nil err marks it failed.
func (sm *StoreMetrics) RecordOperation(ctx context.Context, op string, err error, duration time.Duration) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	sm.operationsTotal.Add(ctx, 1, attrs)
	sm.operationDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		sm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// RecordCandidates records the candidate count of one query.
func (sm *StoreMetrics) RecordCandidates(ctx context.Context, n int) {
	sm.queryCandidates.Record(ctx, float64(n))
}
