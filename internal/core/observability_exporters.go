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

// ExpvarMetricsRecorder publishes per-operation call counts, error counts and
// latency totals as an expvar map, for processes that serve /debug/vars
// instead of a Prometheus endpoint. The published layout is
//
//	{"<op>": {"calls": n, "errors": n, "ms_total": f}, ...}
type ExpvarMetricsRecorder struct {
	name string
	root *expvar.Map

	mu  sync.Mutex
	ops map[string]*opVars
}

type opVars struct {
	calls   *expvar.Int
	errors  *expvar.Int
	msTotal *expvar.Float
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// gets a unique generated one, since expvar names cannot be reused.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("grampscore_db_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	return &ExpvarMetricsRecorder{
		name: name,
		root: expvar.NewMap(name),
		ops:  make(map[string]*opVars),
	}
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

func (r *ExpvarMetricsRecorder) vars(op string) *opVars {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.ops[op]; ok {
		return v
	}
	v := &opVars{calls: new(expvar.Int), errors: new(expvar.Int), msTotal: new(expvar.Float)}
	m := new(expvar.Map).Init()
	m.Set("calls", v.calls)
	m.Set("errors", v.errors)
	m.Set("ms_total", v.msTotal)
	r.root.Set(op, m)
	r.ops[op] = v
	return v
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	v := r.vars(operation)
	v.calls.Add(1)
	if !success {
		v.errors.Add(1)
	}
	v.msTotal.Add(float64(duration) / float64(time.Millisecond))
}

// Calls returns how many times op was observed and how many of those failed.
func (r *ExpvarMetricsRecorder) Calls(op string) (calls, errors int64) {
	r.mu.Lock()
	v, ok := r.ops[op]
	r.mu.Unlock()
	if !ok {
		return 0, 0
	}
	return v.calls.Value(), v.errors.Value()
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes one JSON line per finished span and keeps the spans
// for inspection. It backs the maintenance command's --trace flag.
type JSONTraceTracer struct {
	now func() time.Time

	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer writes spans to w; a nil writer only retains them.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{now: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the finished spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.now()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
	once      sync.Once
}

func (s *jsonTraceSpan) End(err error) {
	s.once.Do(func() { s.tracer.finish(s, err) })
}

func (t *JSONTraceTracer) finish(s *jsonTraceSpan, err error) {
	ended := t.now()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     "ok",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}
