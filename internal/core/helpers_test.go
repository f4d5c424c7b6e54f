package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"grampscore/internal/infra/persistence/memory"
	"grampscore/pkg/domain"
)

func newTestDB(t *testing.T, opts ...Option) (*Database, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	db, err := Open(context.Background(), store, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, store
}

func fixedClock(ts time.Time) ClockFunc {
	return func() time.Time { return ts }
}

func person(first, surname string, gender domain.Gender) *domain.Person {
	return &domain.Person{
		Gender:      gender,
		PrimaryName: domain.Name{FirstName: first, Surname: surname},
	}
}

func mustAdd(t *testing.T, db *Database, objs ...domain.Object) []string {
	t.Helper()
	handles := make([]string, 0, len(objs))
	err := db.RunInTransaction(context.Background(), "add objects", func(tx *Txn) error {
		for _, obj := range objs {
			h, err := tx.Add(context.Background(), obj)
			if err != nil {
				return err
			}
			handles = append(handles, h)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return handles
}

func mustPerson(t *testing.T, db *Database, handle string) *domain.Person {
	t.Helper()
	p, err := domain.FromHandle[*domain.Person](context.Background(), db, handle)
	if err != nil {
		t.Fatalf("get person %s: %v", handle, err)
	}
	return p
}

// failingBackend wraps a backend and fails Apply on demand.
type failingBackend struct {
	domain.Backend
	mu   sync.Mutex
	fail error
}

func (f *failingBackend) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *failingBackend) Apply(ctx context.Context, m []domain.Mutation) error {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Backend.Apply(ctx, m)
}

var errBackendDown = errors.New("backend down")

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
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
	mu    sync.Mutex
	ended map[string][]error
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	if s.tracer.ended == nil {
		s.tracer.ended = make(map[string][]error)
	}
	s.tracer.ended[s.op] = append(s.tracer.ended[s.op], err)
}

type captureLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *captureLogger) log(msg string) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.log(msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.log(msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.log(msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.log(msg) }

func (l *captureLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}

// gatedBackend parks the next Get after it has read from the backend until
// release is closed.
type gatedBackend struct {
	domain.Backend
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedBackend(b domain.Backend) *gatedBackend {
	return &gatedBackend{Backend: b, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedBackend) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *gatedBackend) Get(ctx context.Context, kind domain.EntityType, handle string) (*domain.Record, error) {
	rec, err := g.Backend.Get(ctx, kind, handle)
	g.mu.Lock()
	gate := g.armed
	g.armed = false
	g.mu.Unlock()
	if gate {
		close(g.entered)
		<-g.release
	}
	return rec, err
}
