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
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation counters and timings via expvar.
type ExpvarMetricsRecorder struct {
	name string
	now  func() time.Time

	mu  sync.Mutex
	ops map[string]*ExpvarOperationStats
}

// ExpvarOperationStats aggregates the observations of one operation.
type ExpvarOperationStats struct {
	Success       int64   `json:"success"`
	Errors        int64   `json:"errors"`
	TotalMS       float64 `json:"total_ms"`
	MaxMS         float64 `json:"max_ms"`
	LastSuccessAt string  `json:"last_success_at,omitempty"`
	LastErrorAt   string  `json:"last_error_at,omitempty"`
}

// ExpvarMetricsSnapshot is a copy of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	Operations map[string]ExpvarOperationStats `json:"operations"`
	RecordedAt time.Time                       `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a generated
// unique name when name is empty. expvar names are process-global.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("tbtr_service_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		now:  func() time.Time { return time.Now().UTC() },
		ops:  make(map[string]*ExpvarOperationStats),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot copies the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make(map[string]ExpvarOperationStats, len(r.ops))
	for op, stats := range r.ops {
		ops[op] = *stats
	}
	return ExpvarMetricsSnapshot{Operations: ops, RecordedAt: r.now()}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	at := r.now().Format(time.RFC3339Nano)

	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.ops[operation]
	if !ok {
		stats = &ExpvarOperationStats{}
		r.ops[operation] = stats
	}
	stats.TotalMS += ms
	stats.MaxMS = max(stats.MaxMS, ms)
	if success {
		stats.Success++
		stats.LastSuccessAt = at
	} else {
		stats.Errors++
		stats.LastErrorAt = at
	}
}

// JSONTraceEntry is one span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and keeps them for inspection.
type JSONTraceTracer struct {
	clock Clock

	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w. A nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{clock: ClockFunc(nil)}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// WithClock replaces the clock used to stamp spans and returns the tracer.
func (t *JSONTraceTracer) WithClock(clock Clock) *JSONTraceTracer {
	if clock != nil {
		t.clock = clock
	}
	return t
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.clock.Now()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
	once      sync.Once
}

func (s *jsonTraceSpan) End(err error) {
	s.once.Do(func() {
		ended := s.tracer.clock.Now()
		entry := JSONTraceEntry{
			Operation:  s.operation,
			Status:     "success",
			DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
			StartedAt:  s.started,
			EndedAt:    ended,
		}
		if err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
		}

		s.tracer.mu.Lock()
		defer s.tracer.mu.Unlock()
		s.tracer.entries = append(s.tracer.entries, entry)
		if s.tracer.enc != nil {
			_ = s.tracer.enc.Encode(entry)
		}
	})
}
