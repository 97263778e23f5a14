// Package testing provides shared test helpers for coinlake packages:
// goroutine-safe error collection, an in-memory S3 server and market-data
// fixtures.
//
// Using t.Fatal() or t.FailNow() in goroutines causes undefined behavior because
// these methods call runtime.Goexit() which only terminates the current goroutine,
// not the test goroutine.
package testing

import (
	"context"
	"sync"
	"testing"
)

// GoroutineTest collects errors from goroutines and reports them on Wait.
//
//	gt := testing.NewGoroutineTest(t)
//	for i := 0; i < 8; i++ {
//	    gt.Go(func() error { return store.PutObject(...) })
//	}
//	gt.Wait()
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// Go runs fn in a goroutine and records its error.
func (gt *GoroutineTest) Go(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Wait waits for all goroutines and fails the test if any returned an error.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()
	gt.cancel()

	if len(gt.errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(gt.errs))
		for i, err := range gt.errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}
