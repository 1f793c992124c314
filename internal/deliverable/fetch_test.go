package deliverable

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
)

// fakeSource implements Source with per-collection overrides.
type fakeSource struct {
	processes func(ctx context.Context, projectID string) ([]store.Process, error)
	risks     func(ctx context.Context, projectID string) ([]store.Risk, error)
	controls  func(ctx context.Context, projectID string) ([]store.Control, error)
	tests     func(ctx context.Context, projectID string) ([]store.TestItem, error)
	dataItems func(ctx context.Context, projectID string) ([]store.DataItem, error)
}

func (f *fakeSource) ListProcesses(ctx context.Context, projectID string) ([]store.Process, error) {
	if f.processes != nil {
		return f.processes(ctx, projectID)
	}
	return nil, nil
}

func (f *fakeSource) ListRisks(ctx context.Context, projectID string) ([]store.Risk, error) {
	if f.risks != nil {
		return f.risks(ctx, projectID)
	}
	return nil, nil
}

func (f *fakeSource) ListControls(ctx context.Context, projectID string) ([]store.Control, error) {
	if f.controls != nil {
		return f.controls(ctx, projectID)
	}
	return nil, nil
}

func (f *fakeSource) ListTests(ctx context.Context, projectID string) ([]store.TestItem, error) {
	if f.tests != nil {
		return f.tests(ctx, projectID)
	}
	return nil, nil
}

func (f *fakeSource) ListDataItems(ctx context.Context, projectID string) ([]store.DataItem, error) {
	if f.dataItems != nil {
		return f.dataItems(ctx, projectID)
	}
	return nil, nil
}

func newTestFetcher(source Source) *Fetcher {
	f := NewFetcher(source, time.Second)
	f.backoff = func(int) time.Duration { return 0 }
	return f
}

func TestFetchAllSettled(t *testing.T) {
	source := &fakeSource{
		processes: func(context.Context, string) ([]store.Process, error) {
			return []store.Process{{ID: "proc_1"}}, nil
		},
	}
	in, partial := newTestFetcher(source).Fetch(context.Background(), "prj_1")
	if partial {
		t.Fatal("clean fetch reported partial")
	}
	if len(in.Processes) != 1 {
		t.Fatalf("processes = %d, want 1", len(in.Processes))
	}
	// Empty collections come back as empty slices, never nil.
	if in.Risks == nil || in.Controls == nil || in.Tests == nil || in.DataItems == nil {
		t.Fatal("collections must never be nil")
	}
}

func TestFetchDegradesFailedCollection(t *testing.T) {
	source := &fakeSource{
		processes: func(context.Context, string) ([]store.Process, error) {
			return []store.Process{{ID: "proc_1"}}, nil
		},
		risks: func(context.Context, string) ([]store.Risk, error) {
			return nil, errors.New("connection reset")
		},
	}
	in, partial := newTestFetcher(source).Fetch(context.Background(), "prj_1")
	if !partial {
		t.Fatal("fetch with a failed collection must report partial")
	}
	if len(in.Processes) != 1 {
		t.Fatal("healthy collection must still arrive")
	}
	if in.Risks == nil || len(in.Risks) != 0 {
		t.Fatalf("failed collection must degrade to empty, got %v", in.Risks)
	}
}

func TestFetchRetriesBeforeGivingUp(t *testing.T) {
	var calls atomic.Int32
	source := &fakeSource{
		risks: func(context.Context, string) ([]store.Risk, error) {
			calls.Add(1)
			return nil, errors.New("timeout")
		},
	}
	_, partial := newTestFetcher(source).Fetch(context.Background(), "prj_1")
	if !partial {
		t.Fatal("expected partial after exhausted retries")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("risk query called %d times, want 3 (initial + 2 retries)", got)
	}
}

func TestFetchRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	source := &fakeSource{
		risks: func(context.Context, string) ([]store.Risk, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			return []store.Risk{{ID: "risk_1"}}, nil
		},
	}
	in, partial := newTestFetcher(source).Fetch(context.Background(), "prj_1")
	if partial {
		t.Fatal("recovered fetch must not report partial")
	}
	if len(in.Risks) != 1 {
		t.Fatalf("risks = %d, want 1", len(in.Risks))
	}
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	source := &fakeSource{
		risks: func(context.Context, string) ([]store.Risk, error) {
			calls.Add(1)
			cancel()
			return nil, errors.New("interrupted")
		},
	}
	_, partial := newTestFetcher(source).Fetch(ctx, "prj_1")
	if !partial {
		t.Fatal("cancelled fetch must report partial")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("risk query called %d times after cancel, want 1", got)
	}
}
