package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolSubmitDoesNotBlock(t *testing.T) {
	p := NewPool(context.Background(), nil, &PoolConfig{Workers: 1})
	release := make(chan struct{})

	start := time.Now()
	for i := 0; i < 10; i++ {
		err := p.Submit(TaskFunc{ID: "wait", Fn: func(context.Context) error {
			<-release
			return nil
		}})
		if err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > time.Second {
		t.Fatal("Submit blocked on busy workers")
	}
	close(release)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const workers = 3
	p := NewPool(context.Background(), nil, &PoolConfig{Workers: workers})

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		_ = p.Submit(TaskFunc{ID: "count", Fn: func(context.Context) error {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}})
	}
	wg.Wait()
	if peak > workers {
		t.Fatalf("peak concurrency %d exceeds %d", peak, workers)
	}
	_ = p.Stop(context.Background())
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(context.Background(), nil, &PoolConfig{Workers: 1})
	_ = p.Submit(TaskFunc{ID: "panic", Fn: func(context.Context) error { panic("boom") }})

	done := make(chan struct{})
	_ = p.Submit(TaskFunc{ID: "after", Fn: func(context.Context) error {
		close(done)
		return nil
	}})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not survive a panicking task")
	}
	_ = p.Stop(context.Background())
}

func TestPoolStopDrainsAndRejects(t *testing.T) {
	p := NewPool(context.Background(), nil, &PoolConfig{Workers: 2})
	var finished int32
	for i := 0; i < 4; i++ {
		_ = p.Submit(TaskFunc{ID: "slow", Fn: func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&finished, 1)
			return nil
		}})
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if finished != 4 {
		t.Fatalf("finished = %d, want 4", finished)
	}
	err := p.Submit(TaskFunc{ID: "late", Fn: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPoolStopTimeout(t *testing.T) {
	p := NewPool(context.Background(), nil, &PoolConfig{Workers: 1})
	_ = p.Submit(TaskFunc{ID: "stuck", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestPoolRunsQueuedTasksAfterStopTimeout(t *testing.T) {
	p := NewPool(context.Background(), nil, &PoolConfig{Workers: 1})
	release := make(chan struct{})
	_ = p.Submit(TaskFunc{ID: "blocker", Fn: func(context.Context) error {
		<-release
		return nil
	}})

	ran := make(chan error, 1)
	_ = p.Submit(TaskFunc{ID: "queued", Fn: func(ctx context.Context) error {
		ran <- ctx.Err()
		return ctx.Err()
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); err == nil {
		t.Fatal("expected timeout error")
	}
	close(release)

	select {
	case err := <-ran:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("queued task ctx err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued task never ran")
	}
}
