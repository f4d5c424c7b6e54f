package core

import (
	"context"
	"time"

	"grampscore/pkg/domain"
)

// Logger is the structured logging surface used by the database. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes the outcome and latency of database operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around database operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Clock supplies the current time for change stamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

const (
	// DefaultUndoLimit is the capacity of the undo history.
	DefaultUndoLimit = 1000
	// DefaultCacheSize is the number of decoded records kept in memory.
	DefaultCacheSize = 4096
)

type options struct {
	logger    Logger
	clock     Clock
	metrics   MetricsRecorder
	tracer    Tracer
	undoLimit int
	cacheSize int
	readOnly  bool
	idFormats map[domain.EntityType]string
}

func defaultOptions() options {
	return options{
		logger:    noopLogger{},
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		undoLimit: DefaultUndoLimit,
		cacheSize: DefaultCacheSize,
		idFormats: make(map[domain.EntityType]string),
	}
}

// Option configures a Database.
type Option func(*options)

// WithLogger installs a logger. Nil restores the no-op logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l == nil {
			l = noopLogger{}
		}
		o.logger = l
	}
}

// WithClock overrides the time source used for change stamps.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		if m == nil {
			m = noopMetrics{}
		}
		o.metrics = m
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t == nil {
			t = noopTracer{}
		}
		o.tracer = t
	}
}

// WithUndoLimit sets the capacity of the undo history. Values below one keep the default.
func WithUndoLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.undoLimit = n
		}
	}
}

// WithCacheSize sets the number of records cached in front of the backend.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// ReadOnly opens the database for viewing only.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// WithIDFormat sets the Gramps ID template for kind, for example "I%04d".
// Invalid templates fall back to the default prefix.
func WithIDFormat(kind domain.EntityType, template string) Option {
	return func(o *options) { o.idFormats[kind] = template }
}

// WithIDFormats sets several Gramps ID templates at once.
func WithIDFormats(formats map[domain.EntityType]string) Option {
	return func(o *options) {
		for k, v := range formats {
			o.idFormats[k] = v
		}
	}
}
