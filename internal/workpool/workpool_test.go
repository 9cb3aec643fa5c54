package workpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := New(2)
	var current, max int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Run(context.Background(), func() error {
				n := atomic.AddInt32(&current, 1)
				for {
					m := atomic.LoadInt32(&max)
					if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if max > 2 {
		t.Errorf("observed %d concurrent Run executions, want at most 2", max)
	}
}

func TestPoolRunReturnsFnError(t *testing.T) {
	pool := New(1)
	wantErr := context.Canceled
	err := pool.Run(context.Background(), func() error { return wantErr })
	if err != wantErr {
		t.Errorf("Run error = %v, want %v", err, wantErr)
	}
}

func TestPoolRunReturnsContextErrorWithoutRunningFn(t *testing.T) {
	pool := New(1)
	pool.sem <- struct{}{} // occupy the only slot

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := pool.Run(ctx, func() error {
		ran = true
		return nil
	})
	if err != context.Canceled {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("fn ran despite the context being cancelled before a slot freed up")
	}
}

func TestPoolAvailable(t *testing.T) {
	pool := New(3)
	if got := pool.Available(); got != 3 {
		t.Errorf("Available = %d, want 3", got)
	}
	pool.sem <- struct{}{}
	if got := pool.Available(); got != 2 {
		t.Errorf("Available after occupying one slot = %d, want 2", got)
	}
}
