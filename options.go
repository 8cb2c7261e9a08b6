package partstore

import (
	"log/slog"

	"github.com/hupe1980/partstore/internal/batch"
	"github.com/hupe1980/partstore/internal/fs"
	"github.com/hupe1980/partstore/internal/segment"
)

// Durability controls when flushed bytes are committed to stable storage.
type Durability int

const (
	// DurabilityAsync relies on the OS page cache. A crash may lose
	// flushed entries.
	DurabilityAsync Durability = iota
	// DurabilitySync fsyncs the payload segment before appending the index
	// records and the index segment before publishing them in memory.
	DurabilitySync
)

func (d Durability) String() string {
	if d == DurabilitySync {
		return "sync"
	}
	return "async"
}

type options struct {
	fs               fs.FileSystem
	logger           *Logger
	metricsCollector MetricsCollector
	durability       Durability
	batchSize        int
	maxSegmentSize   uint64
	compaction       bool
	compactor        Compactor
}

// Option configures Open.
type Option func(*options)

// WithFileSystem replaces the local file system, mainly for fault injection.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := partstore.NewJSONLogger(slog.LevelInfo)
//	s, _ := partstore.Open(ctx, dir, partstore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithDurability selects the fsync policy of flushes.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithBatchSize sets the write buffer capacity in bytes (default 16 KiB).
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithMaxSegmentSize sets the payload and index segment rotation
// threshold in bytes (default 4 GB).
func WithMaxSegmentSize(n uint64) Option {
	return func(o *options) {
		o.maxSegmentSize = n
	}
}

// WithCompaction enables the compaction hook. An optional Compactor
// replaces the built-in no-op pass.
func WithCompaction(enabled bool, c ...Compactor) Option {
	return func(o *options) {
		o.compaction = enabled
		if len(c) > 0 && c[0] != nil {
			o.compactor = c[0]
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		fs:               fs.Default,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		durability:       DurabilityAsync,
		batchSize:        batch.DefaultCapacity,
		maxSegmentSize:   segment.DefaultMaxSize,
		compactor:        noopCompactor{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
