package partstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordSet is called after each Set. bytes is the payload size.
	RecordSet(bytes int, duration time.Duration, err error)

	// RecordFlush is called after each flush that had pending entries.
	RecordFlush(entries, bytes int, duration time.Duration, err error)

	// RecordGet is called after each lookup. hit is false for absent keys.
	RecordGet(hit bool, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSet(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordFlush(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordGet(bool, time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	SetCount        atomic.Int64
	SetErrors       atomic.Int64
	SetBytes        atomic.Int64
	FlushCount      atomic.Int64
	FlushErrors     atomic.Int64
	FlushEntries    atomic.Int64
	FlushBytes      atomic.Int64
	FlushTotalNanos atomic.Int64
	GetCount        atomic.Int64
	GetHits         atomic.Int64
	GetErrors       atomic.Int64
	GetTotalNanos   atomic.Int64
}

// RecordSet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSet(bytes int, _ time.Duration, err error) {
	b.SetCount.Add(1)
	if err != nil {
		b.SetErrors.Add(1)
		return
	}
	b.SetBytes.Add(int64(bytes))
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(entries, bytes int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushEntries.Add(int64(entries))
	b.FlushBytes.Add(int64(bytes))
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(hit bool, duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetErrors.Add(1)
	}
	if hit {
		b.GetHits.Add(1)
	}
}

// BasicMetricsStats is a point-in-time copy of BasicMetricsCollector.
type BasicMetricsStats struct {
	SetCount      int64
	SetErrors     int64
	SetBytes      int64
	FlushCount    int64
	FlushErrors   int64
	FlushEntries  int64
	FlushBytes    int64
	FlushAvgNanos int64
	GetCount      int64
	GetHits       int64
	GetErrors     int64
	GetAvgNanos   int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SetCount:      b.SetCount.Load(),
		SetErrors:     b.SetErrors.Load(),
		SetBytes:      b.SetBytes.Load(),
		FlushCount:    b.FlushCount.Load(),
		FlushErrors:   b.FlushErrors.Load(),
		FlushEntries:  b.FlushEntries.Load(),
		FlushBytes:    b.FlushBytes.Load(),
		FlushAvgNanos: avg(b.FlushTotalNanos.Load(), b.FlushCount.Load()),
		GetCount:      b.GetCount.Load(),
		GetHits:       b.GetHits.Load(),
		GetErrors:     b.GetErrors.Load(),
		GetAvgNanos:   avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}
