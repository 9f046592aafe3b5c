package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"PriceServer/pkg/logger"
)

// ErrPoolStopped is returned by Submit after Stop has been called.
var ErrPoolStopped = errors.New("queue: pool stopped")

// PoolConfig contains the configuration for the pool.
type PoolConfig struct {
	Workers int // maximum tasks running at once
}

// Pool runs each submitted task on its own goroutine while a semaphore bounds how
// many run at once. Submit never blocks; tasks beyond the limit wait inside their
// goroutine. Tasks run on the pool's context, not the submitter's. Every accepted
// task is run exactly once, even after the pool context is cancelled.
type Pool struct {
	logger  *logger.Logger
	sem     chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool creates a pool whose tasks run on a context derived from parent.
func NewPool(parent context.Context, lgr *logger.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = &PoolConfig{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Pool{
		logger: lgr,
		sem:    make(chan struct{}, workers),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules task and returns immediately.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	p.wg.Add(1)
	go p.run(task)
	return nil
}

func (p *Pool) run(task Task) {
	defer p.wg.Done()

	// A task that never got a slot still runs, on the cancelled context, so it can
	// record its own outcome.
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-p.ctx.Done():
		p.logger.Warn("task started after pool cancellation", logger.String("task", task.Name()))
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic",
				logger.String("task", task.Name()),
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	if err := task.Run(p.ctx); err != nil {
		p.logger.Error("task failed",
			logger.String("task", task.Name()),
			logger.Duration("elapsed_ms", time.Since(start)),
			logger.Error(err))
		return
	}
	p.logger.Debug("task finished",
		logger.String("task", task.Name()),
		logger.Duration("elapsed_ms", time.Since(start)))
}

// Stop rejects new submissions and waits for running and queued tasks until ctx
// expires, after which the pool context is cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		p.cancel()
		p.logger.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("timeout waiting for pool tasks", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}
