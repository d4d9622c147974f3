package signals

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option configures a Processor or Scheduler.
type Option func(*options)

type options struct {
	bufferSize  func() int
	idleTimeout time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	observer    Observer
	onError     ErrorHandler
	baseCtx     context.Context
}

func defaultOptions() options {
	return options{
		idleTimeout: DefaultIdleTimeout,
		clock:       clockwork.NewRealClock(),
		observer:    nopObserver{},
		baseCtx:     context.Background(),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithBufferSizeFunc sets the source of the buffer size. fn is called at most
// once, on first use; a non-positive result falls back to DefaultBufferSize.
func WithBufferSizeFunc(fn func() int) Option {
	return func(o *options) {
		o.bufferSize = fn
	}
}

// WithBufferSize sets a fixed buffer size.
func WithBufferSize(n int) Option {
	return WithBufferSizeFunc(func() int { return n })
}

// WithIdleTimeout sets how long a partially filled buffer waits before it is
// flushed. Non-positive values keep the default.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithClock sets the clock used to arm idle timers.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver sets the observer notified after every backend call.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithErrorHandler sets the handler for failed idle flushes.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.onError = h
	}
}

// WithBaseContext sets the context passed to the backend by idle flushes.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.baseCtx = ctx
		}
	}
}
