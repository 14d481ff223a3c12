package saga

import (
	"log/slog"
	"time"
)

const defaultRetryBackoff = 50 * time.Millisecond

type options struct {
	retries      int
	retryBackoff time.Duration
	final        bool
	logger       *slog.Logger
	metrics      Metrics
}

func newOptions(opts []Option) options {
	o := options{
		retryBackoff: defaultRetryBackoff,
		logger:       slog.Default(),
		metrics:      NopMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = NopMetrics()
	}
	return o
}

// Option configures the coordinator types of this package.
type Option func(*options)

// WithStepRetries retries a step up to n extra times when it fails with a
// system error. Domain errors are never retried. n < 0 is a configuration
// error.
func WithStepRetries(n int) Option {
	return func(o *options) {
		o.retries = n
	}
}

// WithRetryBackoff sets the pause between step retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) {
		o.retryBackoff = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithFinalStep marks a choreography step as the last one of its saga: a
// successful run commits the saga. Other steps leave it Active for the next
// step in the chain.
func WithFinalStep() Option {
	return func(o *options) {
		o.final = true
	}
}
