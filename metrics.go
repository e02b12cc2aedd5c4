package memvec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordAdd is called after each vector add or update.
	// duration is the total time taken, err is nil if successful.
	RecordAdd(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordDelete is called after each vector delete.
	RecordDelete(duration time.Duration, err error)

	// RecordFlush is called after each flush cycle (background or FlushNow).
	// indices is the number of indices written.
	RecordFlush(indices int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, error)        {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)     {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount         atomic.Int64
	AddErrors        atomic.Int64
	AddTotalNanos    atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
	FlushedIndices   atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(indices int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushedIndices.Add(int64(indices))
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:       b.AddCount.Load(),
		AddErrors:      b.AddErrors.Load(),
		AddAvgNanos:    avgNanos(b.AddTotalNanos.Load(), b.AddCount.Load()),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		FlushCount:     b.FlushCount.Load(),
		FlushErrors:    b.FlushErrors.Load(),
		FlushedIndices: b.FlushedIndices.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount       int64
	AddErrors      int64
	AddAvgNanos    int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	DeleteCount    int64
	DeleteErrors   int64
	FlushCount     int64
	FlushErrors    int64
	FlushedIndices int64
}
