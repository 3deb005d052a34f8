package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrent = 4
	DefaultMaxQueued     = 64
)

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context)

type PoolOptions struct {
	// MaxConcurrent is the number of worker goroutines.
	MaxConcurrent int
	// MaxQueued bounds accepted tasks that have not started yet. Zero accepts
	// a task only while fewer than MaxConcurrent tasks are in flight.
	MaxQueued int
	Logger    zerolog.Logger
}

// PoolStats is a point-in-time view of pool occupancy.
type PoolStats struct {
	Workers int
	Queued  int
	Running int
}

// Pool runs tasks on a fixed set of workers with a bounded backlog.
// Admission is counted against MaxConcurrent+MaxQueued slots, so an idle
// pool accepts work regardless of whether a worker is parked on the channel.
type Pool struct {
	workers  int
	queued   int
	tasks    chan Task
	inFlight *semaphore.Weighted
	logger   zerolog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	group   *errgroup.Group
	running atomic.Int64
}

func NewPool(opts PoolOptions) *Pool {
	workers := opts.MaxConcurrent
	if workers <= 0 {
		workers = DefaultMaxConcurrent
	}
	queued := opts.MaxQueued
	if queued < 0 {
		queued = 0
	}

	capacity := workers + queued
	return &Pool{
		workers:  workers,
		queued:   queued,
		tasks:    make(chan Task, capacity),
		inFlight: semaphore.NewWeighted(int64(capacity)),
		logger:   opts.Logger,
	}
}

// Start launches the workers. Tasks receive ctx.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &Error{Kind: KindUnavailable, Detail: "pool is shut down"}
	}
	if p.started {
		return nil
	}

	group := &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		worker := i
		group.Go(func() error {
			for task := range p.tasks {
				p.run(ctx, worker, task)
			}
			return nil
		})
	}
	p.group = group
	p.started = true

	p.logger.Info().
		Int("workers", p.workers).
		Int("max_queued", p.queued).
		Msg("job pool started")
	return nil
}

// TrySubmit hands task to the pool without blocking.
func (p *Pool) TrySubmit(task Task) error {
	if task == nil {
		return internalf("", "nil task")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || !p.started {
		return &Error{Kind: KindUnavailable, Detail: "pool is not accepting work"}
	}

	if !p.inFlight.TryAcquire(1) {
		return &Error{
			Kind:   KindCapacityExceeded,
			Detail: fmt.Sprintf("all %d workers busy and %d jobs queued", p.workers, p.queued),
		}
	}
	// The buffer holds every slot, so the send never blocks.
	p.tasks <- task
	return nil
}

// Shutdown stops intake, lets queued tasks drain and waits for workers until ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	group := p.group
	p.mu.Unlock()

	if group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		p.logger.Info().Msg("job pool drained")
		return err
	case <-ctx.Done():
		return fmt.Errorf("wait for job pool: %w", ctx.Err())
	}
}

// Accepting reports whether the pool is started and not shut down.
func (p *Pool) Accepting() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started && !p.closed
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers: p.workers,
		Queued:  len(p.tasks),
		Running: int(p.running.Load()),
	}
}

func (p *Pool) run(ctx context.Context, worker int, task Task) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer p.inFlight.Release(1)
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Error().
				Int("worker", worker).
				Interface("panic", recovered).
				Bytes("stack", debug.Stack()).
				Msg("job task panicked")
		}
	}()

	task(ctx)
}
