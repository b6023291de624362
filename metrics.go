package kvdir

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordCreate is called after each CreateOutput.
	RecordCreate(duration time.Duration, err error)

	// RecordFlush is called after an output's content is written to the
	// store. bytes is the file size, chunks the number of chunk records.
	RecordFlush(bytes int64, chunks int, duration time.Duration, err error)

	// RecordOpen is called after each OpenInput. bytes is the file size.
	RecordOpen(bytes int64, duration time.Duration, err error)

	// RecordDelete is called after each DeleteFile.
	RecordDelete(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(time.Duration, error)            {}
func (NoopMetricsCollector) RecordFlush(int64, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordOpen(int64, time.Duration, error)       {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount     atomic.Int64
	CreateErrors    atomic.Int64
	FlushCount      atomic.Int64
	FlushErrors     atomic.Int64
	FlushBytes      atomic.Int64
	FlushChunks     atomic.Int64
	FlushTotalNanos atomic.Int64
	OpenCount       atomic.Int64
	OpenErrors      atomic.Int64
	OpenBytes       atomic.Int64
	OpenTotalNanos  atomic.Int64
	DeleteCount     atomic.Int64
	DeleteErrors    atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(_ time.Duration, err error) {
	b.CreateCount.Add(1)
	if err != nil {
		b.CreateErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(bytes int64, chunks int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushBytes.Add(bytes)
	b.FlushChunks.Add(int64(chunks))
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(bytes int64, duration time.Duration, err error) {
	b.OpenCount.Add(1)
	b.OpenTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.OpenErrors.Add(1)
		return
	}
	b.OpenBytes.Add(bytes)
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:   b.CreateCount.Load(),
		CreateErrors:  b.CreateErrors.Load(),
		FlushCount:    b.FlushCount.Load(),
		FlushErrors:   b.FlushErrors.Load(),
		FlushBytes:    b.FlushBytes.Load(),
		FlushChunks:   b.FlushChunks.Load(),
		FlushAvgNanos: avg(b.FlushTotalNanos.Load(), b.FlushCount.Load()),
		OpenCount:     b.OpenCount.Load(),
		OpenErrors:    b.OpenErrors.Load(),
		OpenBytes:     b.OpenBytes.Load(),
		OpenAvgNanos:  avg(b.OpenTotalNanos.Load(), b.OpenCount.Load()),
		DeleteCount:   b.DeleteCount.Load(),
		DeleteErrors:  b.DeleteErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount   int64
	CreateErrors  int64
	FlushCount    int64
	FlushErrors   int64
	FlushBytes    int64
	FlushChunks   int64
	FlushAvgNanos int64
	OpenCount     int64
	OpenErrors    int64
	OpenBytes     int64
	OpenAvgNanos  int64
	DeleteCount   int64
	DeleteErrors  int64
}
