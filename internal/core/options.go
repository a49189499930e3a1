package core

import (
	"context"
	"time"

	"resourcesync/pkg/domain"
)

// Clock supplies timestamps for createdAt/modifiedAt stamping.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome of one-shot service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around one-shot service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

// SubscriptionObserver is notified about the lifecycle of live subscriptions.
// Implementations must be safe for concurrent use; calls arrive on store
// delivery goroutines.
type SubscriptionObserver interface {
	SubscriptionOpened(path domain.EntityPath)
	SubscriptionClosed(path domain.EntityPath)
	SnapshotApplied(path domain.EntityPath, documents int)
	SnapshotSuppressed(path domain.EntityPath)
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	observer SubscriptionObserver
}

func defaultOptions() options {
	return options{
		logger:   noopLogger{},
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		observer: noopObserver{},
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
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
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithSubscriptionObserver installs a subscription lifecycle observer.
func WithSubscriptionObserver(obs SubscriptionObserver) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopObserver struct{}

func (noopObserver) SubscriptionOpened(domain.EntityPath)   {}
func (noopObserver) SubscriptionClosed(domain.EntityPath)   {}
func (noopObserver) SnapshotApplied(domain.EntityPath, int) {}
func (noopObserver) SnapshotSuppressed(domain.EntityPath)   {}
