package deliverable

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
)

// Source is the read side of the register store. The five methods are
// queried concurrently and settle independently.
type Source interface {
	ListProcesses(ctx context.Context, projectID string) ([]store.Process, error)
	ListRisks(ctx context.Context, projectID string) ([]store.Risk, error)
	ListControls(ctx context.Context, projectID string) ([]store.Control, error)
	ListTests(ctx context.Context, projectID string) ([]store.TestItem, error)
	ListDataItems(ctx context.Context, projectID string) ([]store.DataItem, error)
}

const fetchRetries = 2

// Fetcher loads the five register collections for a project. Each
// collection gets its own retry budget and timeout; a collection that
// exhausts its retries degrades to an empty list instead of failing the
// whole fetch.
type Fetcher struct {
	source  Source
	timeout time.Duration

	// backoff is overridable so tests do not sleep.
	backoff func(attempt int) time.Duration
}

func NewFetcher(source Source, timeout time.Duration) *Fetcher {
	return &Fetcher{
		source:  source,
		timeout: timeout,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
	}
}

// Fetch issues the five reads concurrently and waits for all of them to
// settle. The returned flag is true when at least one collection failed
// and was degraded; callers surface one notification for the whole
// fetch, not one per query.
func (f *Fetcher) Fetch(ctx context.Context, projectID string) (Inputs, bool) {
	var (
		in      Inputs
		mu      sync.Mutex
		partial bool
		wg      sync.WaitGroup
	)

	fail := func(name string, err error) {
		log.Printf("fetch: %s degraded to empty after retries: %v", name, err)
		mu.Lock()
		partial = true
		mu.Unlock()
	}

	wg.Add(5)
	go func() {
		defer wg.Done()
		rows, err := fetchWithRetry(ctx, f, func(ctx context.Context) ([]store.Process, error) {
			return f.source.ListProcesses(ctx, projectID)
		})
		if err != nil {
			fail("processes", err)
			return
		}
		in.Processes = rows
	}()
	go func() {
		defer wg.Done()
		rows, err := fetchWithRetry(ctx, f, func(ctx context.Context) ([]store.Risk, error) {
			return f.source.ListRisks(ctx, projectID)
		})
		if err != nil {
			fail("risks", err)
			return
		}
		in.Risks = rows
	}()
	go func() {
		defer wg.Done()
		rows, err := fetchWithRetry(ctx, f, func(ctx context.Context) ([]store.Control, error) {
			return f.source.ListControls(ctx, projectID)
		})
		if err != nil {
			fail("controls", err)
			return
		}
		in.Controls = rows
	}()
	go func() {
		defer wg.Done()
		rows, err := fetchWithRetry(ctx, f, func(ctx context.Context) ([]store.TestItem, error) {
			return f.source.ListTests(ctx, projectID)
		})
		if err != nil {
			fail("tests", err)
			return
		}
		in.Tests = rows
	}()
	go func() {
		defer wg.Done()
		rows, err := fetchWithRetry(ctx, f, func(ctx context.Context) ([]store.DataItem, error) {
			return f.source.ListDataItems(ctx, projectID)
		})
		if err != nil {
			fail("data items", err)
			return
		}
		in.DataItems = rows
	}()
	wg.Wait()

	if in.Processes == nil {
		in.Processes = []store.Process{}
	}
	if in.Risks == nil {
		in.Risks = []store.Risk{}
	}
	if in.Controls == nil {
		in.Controls = []store.Control{}
	}
	if in.Tests == nil {
		in.Tests = []store.TestItem{}
	}
	if in.DataItems == nil {
		in.DataItems = []store.DataItem{}
	}
	return in, partial
}

// fetchWithRetry runs one collection read with up to fetchRetries
// retries and linear backoff. Every attempt is bounded by the fetcher
// timeout so a hung query cannot stall the dashboard indefinitely.
func fetchWithRetry[T any](ctx context.Context, f *Fetcher, read func(context.Context) ([]T, error)) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			if !sleep(ctx, f.backoff(attempt)) {
				return nil, ctx.Err()
			}
		}
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if f.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, f.timeout)
		}
		rows, err := read(attemptCtx)
		cancel()
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
