package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"resourcesync/pkg/domain"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes operation timings and subscription counters
// via expvar. It satisfies both MetricsRecorder and SubscriptionObserver.
type ExpvarMetricsRecorder struct {
	name          string
	mu            sync.Mutex
	durations     map[string]float64
	results       map[string]map[string]int64
	subscriptions map[string]int64
	deliveries    map[string]map[string]int64
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS   map[string]float64          `json:"durations_ms_total"`
	Results       map[string]map[string]int64 `json:"results_total"`
	Subscriptions map[string]int64            `json:"subscriptions_active"`
	Deliveries    map[string]map[string]int64 `json:"deliveries_total"`
	RecordedAt    time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs a recorder published under name. An
// empty name gets a unique generated one.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("resourcesync_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:          name,
		durations:     make(map[string]float64),
		results:       make(map[string]map[string]int64),
		subscriptions: make(map[string]int64),
		deliveries:    make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns a copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	subs := make(map[string]int64, len(r.subscriptions))
	for path, n := range r.subscriptions {
		subs[path] = n
	}
	return ExpvarMetricsSnapshot{
		DurationsMS:   durations,
		Results:       copyNested(r.results),
		Subscriptions: subs,
		Deliveries:    copyNested(r.deliveries),
		RecordedAt:    time.Now().UTC(),
	}
}

func copyNested(in map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(in))
	for k, counts := range in {
		cpy := make(map[string]int64, len(counts))
		for status, n := range counts {
			cpy[status] = n
		}
		out[k] = cpy
	}
	return out
}

func (r *ExpvarMetricsRecorder) bump(m map[string]map[string]int64, key, status string) {
	if _, ok := m[key]; !ok {
		m[key] = make(map[string]int64, 2)
	}
	m[key][status]++
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := "error"
	if success {
		status = "success"
	}

	r.mu.Lock()
	r.durations[operation] += ms
	r.bump(r.results, operation, status)
	r.mu.Unlock()
}

// SubscriptionOpened implements SubscriptionObserver.
func (r *ExpvarMetricsRecorder) SubscriptionOpened(path domain.EntityPath) {
	r.mu.Lock()
	r.subscriptions[string(path)]++
	r.mu.Unlock()
}

// SubscriptionClosed implements SubscriptionObserver.
func (r *ExpvarMetricsRecorder) SubscriptionClosed(path domain.EntityPath) {
	r.mu.Lock()
	r.subscriptions[string(path)]--
	r.mu.Unlock()
}

// SnapshotApplied implements SubscriptionObserver.
func (r *ExpvarMetricsRecorder) SnapshotApplied(path domain.EntityPath, _ int) {
	r.mu.Lock()
	r.bump(r.deliveries, string(path), "applied")
	r.mu.Unlock()
}

// SnapshotSuppressed implements SubscriptionObserver.
func (r *ExpvarMetricsRecorder) SnapshotSuppressed(path domain.EntityPath) {
	r.mu.Lock()
	r.bump(r.deliveries, string(path), "suppressed")
	r.mu.Unlock()
}

// JSONTraceEntry represents a serialized span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w; a nil writer only retains.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
	ended     atomic.Bool
}

func (s *jsonTraceSpan) End(err error) {
	if s.ended.Swap(true) {
		return
	}
	entry := JSONTraceEntry{
		Operation: s.operation,
		Status:    "success",
		StartedAt: s.started,
		EndedAt:   time.Now().UTC(),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	entry.DurationMS = float64(entry.EndedAt.Sub(s.started)) / float64(time.Millisecond)

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
