package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/lead"
)

// fakeExtractor answers from fn and records every capture it sees.
type fakeExtractor struct {
	mu    sync.Mutex
	fn    func(c lead.Capture) (*lead.Fields, error)
	seen  []lead.Capture
	delay time.Duration

	// block, when set, runs before fn and can fail the call.
	block func(ctx context.Context) error
}

func (f *fakeExtractor) Process(ctx context.Context, c lead.Capture) (*lead.Fields, error) {
	f.mu.Lock()
	f.seen = append(f.seen, c)
	fn := f.fn
	block := f.block
	f.mu.Unlock()

	if block != nil {
		if err := block(ctx); err != nil {
			return nil, err
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	fields, err := fn(c)
	if err != nil {
		return nil, err
	}
	fields.Sources = []lead.Source{{Type: c.Type, Timestamp: time.Now().UTC(), Text: c.Text}}
	return fields, nil
}

func (f *fakeExtractor) calls() []lead.Capture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lead.Capture(nil), f.seen...)
}

func fixedFields(f lead.Fields) func(lead.Capture) (*lead.Fields, error) {
	return func(lead.Capture) (*lead.Fields, error) {
		cp := f
		return &cp, nil
	}
}

type staticProber struct{ err error }

func (p staticProber) Ping(context.Context) error { return p.err }

type harness struct {
	leads     *db.Leads
	pending   *db.Pending
	images    *db.Images
	extractor *fakeExtractor
	monitor   *Monitor
	drainer   *Drainer
	orch      *Orchestrator
	clock     *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := &harness{
		leads:     db.NewLeads(database),
		pending:   db.NewPending(database),
		images:    db.NewImages(database),
		extractor: &fakeExtractor{fn: fixedFields(lead.Fields{Name: "Someone", Confidence: 0.5})},
		monitor:   NewMonitor(staticProber{}, time.Hour),
		clock:     &testClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
	}
	h.monitor.Set(online)
	h.drainer = NewDrainer(h.pending, h.leads, h.extractor, h.images, h.monitor)
	h.orch = NewOrchestrator(h.leads, h.extractor, h.drainer, h.monitor,
		WithImages(h.images), WithClock(h.clock.Now))
	t.Cleanup(h.drainer.Wait)
	return h
}
