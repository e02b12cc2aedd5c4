package memvec

import (
	"github.com/memvec/memvec/blobstore"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	flushMirror      blobstore.Store
}

// Option configures VectorDB constructor behavior.
type Option func(*options)

// WithLogger configures structured logging. If nil is passed, logging is
// disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithMetricsCollector configures operational metrics collection.
// If nil is passed, metrics are discarded.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *options) {
		if collector == nil {
			collector = NoopMetricsCollector{}
		}
		o.metricsCollector = collector
	}
}

// WithFlushMirror configures a blob store that receives a copy of every
// snapshot file written by a successful flush. Mirror failures during
// background flushes are logged, not returned; FlushNow reports them.
func WithFlushMirror(store blobstore.Store) Option {
	return func(o *options) {
		o.flushMirror = store
	}
}
