package kvdir

import (
	"log/slog"
)

type options struct {
	lockFactory      LockFactory
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Directory.
type Option func(*options)

// WithLockFactory configures the lock strategy.
//
// If nil is passed, NoLockFactory is used. The store's transactional
// isolation already protects concurrent writers, so a no-op lock is the
// default.
func WithLockFactory(f LockFactory) Option {
	return func(o *options) {
		if f == nil {
			f = NoLockFactory{}
		}
		o.lockFactory = f
	}
}

// WithMetricsCollector configures a metrics collector for file operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kvdir.BasicMetricsCollector{}
//	dir := kvdir.New(db, root, kvdir.WithMetricsCollector(metrics))
//	// ... use dir ...
//	stats := metrics.GetStats()
//	fmt.Printf("Flushed bytes: %d\n", stats.FlushBytes)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := kvdir.NewJSONLogger(slog.LevelDebug)
//	dir := kvdir.New(db, root, kvdir.WithLogger(logger))
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

func applyOptions(optFns []Option) options {
	o := options{
		lockFactory:      NoLockFactory{},
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
