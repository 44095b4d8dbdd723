package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/docq/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	if d.err != nil {
		return d.err
	}
	d.last.Store(append([]byte(nil), data...))
	return nil
}

func TestSyncNow_SkipsUnchangedRegistry(t *testing.T) {
	src := &fakeQueries{queries: []*model.NamedQuery{sampleQuery("a")}}
	dest := &mockDestination{name: "mock"}
	sched := NewScheduler(src, []Destination{dest}, time.Hour, discard)

	ctx := context.Background()
	for range 3 {
		if err := sched.SyncNow(ctx); err != nil {
			t.Fatalf("SyncNow: %v", err)
		}
	}
	if n := dest.writes.Load(); n != 1 {
		t.Fatalf("writes = %d, want 1 for an unchanged registry", n)
	}

	src.queries = append(src.queries, sampleQuery("b"))
	if err := sched.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if n := dest.writes.Load(); n != 2 {
		t.Fatalf("writes = %d, want 2 after a change", n)
	}
	data, _ := dest.last.Load().([]byte)
	if lines := nonEmptyLines(string(data)); len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestSyncNow_FailingDestinationIsRetried(t *testing.T) {
	src := &fakeQueries{queries: []*model.NamedQuery{sampleQuery("a")}}
	bad := &mockDestination{name: "bad", err: errors.New("unreachable")}
	good := &mockDestination{name: "good"}
	sched := NewScheduler(src, []Destination{bad, good}, time.Hour, discard)

	ctx := context.Background()
	if err := sched.SyncNow(ctx); err == nil {
		t.Fatal("expected error from failing destination")
	}
	if good.writes.Load() != 1 {
		t.Fatal("a failing destination must not block the others")
	}

	bad.err = nil
	if err := sched.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if bad.writes.Load() != 2 || good.writes.Load() != 1 {
		t.Fatalf("writes bad=%d good=%d, want 2 and 1", bad.writes.Load(), good.writes.Load())
	}
}

func TestSchedulerStartStop(t *testing.T) {
	src := &fakeQueries{queries: []*model.NamedQuery{sampleQuery("a")}}
	dest := &mockDestination{name: "mock"}

	sched := NewScheduler(src, []Destination{dest}, 20*time.Millisecond, discard)
	sched.Start()

	deadline := time.Now().Add(time.Second)
	for dest.writes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sched.Stop()

	if dest.writes.Load() != 1 {
		t.Fatalf("writes = %d, want exactly the initial sync", dest.writes.Load())
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(&fakeQueries{}, nil, time.Minute, nil)
	sched.Stop()
}
