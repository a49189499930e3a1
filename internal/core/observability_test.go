package core

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"strings"
	"sync"
	"testing"
	"time"
)

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
	c.mu.Unlock()
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	mu      sync.Mutex
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.mu.Lock()
	c.started = append(c.started, op)
	c.mu.Unlock()
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
	s.tracer.mu.Unlock()
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if expvar.Get(rec.Name()) == nil {
		t.Fatalf("recorder not published under %s", rec.Name())
	}
	rec.Observe(context.Background(), "players.get", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "players.get", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)
	rec.SubscriptionOpened("players")
	rec.SnapshotSuppressed("players")

	snap := rec.Snapshot()
	if snap.DurationsMS["players.get"] != 3 {
		t.Fatalf("durations: %v", snap.DurationsMS)
	}
	if snap.Results["players.get"]["success"] != 1 || snap.Results["players.get"]["error"] != 1 {
		t.Fatalf("results: %v", snap.Results)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operations must be ignored: %v", snap.Results)
	}
	if snap.Subscriptions["players"] != 1 || snap.Deliveries["players"]["suppressed"] != 1 {
		t.Fatalf("subscription counters: %v %v", snap.Subscriptions, snap.Deliveries)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "players.get")
	span.End(nil)
	span.End(errors.New("ignored"))
	_, span = tracer.Start(context.Background(), "players.update")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two spans, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected two json lines, got %d", lines)
	}
}
