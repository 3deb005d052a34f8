package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/mtgate/internal/translation"
)

const DefaultEngineTimeout = 5 * time.Minute

type Options struct {
	// EngineTimeout bounds a single engine call. Zero disables the bound.
	EngineTimeout time.Duration
	IDs           IDGenerator
	Observers     []Observer
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Controller owns the async translation lifecycle: it accepts jobs, runs
// them on the pool and answers status and result queries from the registry.
type Controller struct {
	registry  *Registry
	pool      *Pool
	engine    translation.Provider
	ids       IDGenerator
	timeout   time.Duration
	observers Observers
	logger    zerolog.Logger
	now       func() time.Time

	started atomic.Bool
	stopped atomic.Bool
}

func NewController(registry *Registry, pool *Pool, engine translation.Provider, opts Options) *Controller {
	ids := opts.IDs
	if ids == nil {
		ids = UUIDGenerator{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		registry:  registry,
		pool:      pool,
		engine:    engine,
		ids:       ids,
		timeout:   opts.EngineTimeout,
		observers: Observers(opts.Observers),
		logger:    opts.Logger,
		now:       now,
	}
}

// Start launches the workers and the expiry sweeper. Worker tasks inherit ctx.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.pool.Start(ctx); err != nil {
		return err
	}
	if err := c.registry.StartSweeper(); err != nil {
		return err
	}
	c.started.Store(true)
	return nil
}

// Shutdown stops intake and waits for running jobs until ctx ends.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.stopped.Store(true)
	err := c.pool.Shutdown(ctx)
	c.registry.StopSweeper()
	return err
}

// Ready reports whether new jobs can be accepted.
func (c *Controller) Ready() bool {
	return c.started.Load() && !c.stopped.Load() && c.pool.Accepting()
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) Pool() *Pool {
	return c.pool
}

// SubmitAsync registers a job and schedules it. When the pool rejects the
// work no entry is left behind and the id is never returned.
func (c *Controller) SubmitAsync(ctx context.Context, req translation.Request) (ID, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: KindUnavailable, Err: err}
	}
	if c.stopped.Load() {
		err := &Error{Kind: KindUnavailable, Detail: "shutting down"}
		c.observers.JobRejected(err)
		return "", err
	}

	id := c.ids.NewID()
	job, err := c.registry.Put(id, req.Clone())
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", id.String()).Msg("register translation job")
		return "", err
	}

	if err := c.pool.TrySubmit(func(taskCtx context.Context) {
		c.execute(taskCtx, id)
	}); err != nil {
		c.registry.Remove(id)
		c.observers.JobRejected(err)
		c.logger.Warn().
			Err(err).
			Int("segments", len(req.Segments)).
			Msg("translation job rejected")
		return "", err
	}

	c.observers.JobSubmitted(job)
	c.logger.Debug().
		Str("job_id", id.String()).
		Int("segments", len(req.Segments)).
		Str("source", req.SourceLanguage.String()).
		Str("target", req.TargetLanguage.String()).
		Msg("translation job accepted")
	return id, nil
}

// QueryStatus reports running, done or failed. Pending jobs report running.
func (c *Controller) QueryStatus(id ID) (Status, error) {
	job, err := c.registry.Get(id)
	if err != nil {
		return Status{}, err
	}

	switch job.State {
	case StateDone:
		return Status{Status: StatusDone}, nil
	case StateFailed:
		detail := defaultDetail
		if job.Outcome != nil && job.Outcome.Detail != "" {
			detail = job.Outcome.Detail
		}
		return Status{Status: StatusFailed, Detail: detail}, nil
	default:
		return Status{Status: StatusRunning}, nil
	}
}

// QueryResult returns the stored payload of a finished job. Every call on
// the same done job returns an equal, independent copy.
func (c *Controller) QueryResult(id ID) (*translation.Response, error) {
	job, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}

	switch job.State {
	case StateDone:
		if job.Outcome == nil || job.Outcome.Response == nil {
			return nil, internalf(id, "done job has no result")
		}
		return job.Outcome.Response.Clone(), nil
	case StateFailed:
		detail := defaultDetail
		if job.Outcome != nil && job.Outcome.Detail != "" {
			detail = job.Outcome.Detail
		}
		return nil, &Error{Kind: KindJobFailed, JobID: id, Detail: detail}
	default:
		return nil, &Error{Kind: KindNotReady, JobID: id}
	}
}

// TranslateSync calls the engine directly without touching the registry.
func (c *Controller) TranslateSync(ctx context.Context, req translation.Request) (*translation.Response, error) {
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, &Error{Kind: KindEngineFailure, Detail: sanitizeDetail(err.Error()), Err: err}
	}
	return resp, nil
}

func (c *Controller) execute(ctx context.Context, id ID) {
	job, req, err := c.registry.MarkRunning(id)
	if err != nil {
		c.logger.Warn().Err(err).Str("job_id", id.String()).Msg("skip translation job")
		return
	}

	// A running job must always reach a terminal state, even when something
	// outside the engine call panics.
	recorded := false
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		c.logger.Error().
			Str("job_id", id.String()).
			Interface("panic", recovered).
			Bytes("stack", debug.Stack()).
			Msg("translation job panicked")
		if recorded {
			return
		}
		if _, err := c.registry.UpdateTerminal(id, Failed(fmt.Sprintf("worker panic: %v", recovered))); err != nil {
			c.logger.Error().Err(err).Str("job_id", id.String()).Msg("record translation panic")
		}
	}()

	c.observers.JobStarted(job)

	started := c.now()
	outcome := c.invoke(ctx, req)
	elapsed := c.now().Sub(started)

	finished, err := c.registry.UpdateTerminal(id, outcome)
	recorded = err == nil
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", id.String()).Msg("record translation outcome")
		return
	}
	c.observers.JobFinished(finished, elapsed)

	event := c.logger.Info()
	if finished.State == StateFailed {
		event = c.logger.Warn().Str("detail", outcome.Detail)
	}
	event.
		Str("job_id", id.String()).
		Str("state", string(finished.State)).
		Dur("elapsed", elapsed).
		Msg("translation job finished")
}

func (c *Controller) invoke(ctx context.Context, req translation.Request) Outcome {
	resp, err := c.call(ctx, req)
	if err != nil {
		return Failed(err.Error())
	}
	return Succeeded(resp)
}

type callResult struct {
	resp *translation.Response
	err  error
}

// call runs the engine in its own goroutine so a caller waiting past the
// timeout is released even when the engine ignores cancellation.
func (c *Controller) call(ctx context.Context, req translation.Request) (*translation.Response, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- callResult{err: fmt.Errorf("engine panic: %v", recovered)}
			}
		}()
		resp, err := c.engine.Translate(callCtx, req)
		done <- callResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, c.timeoutError()
			}
			return nil, fmt.Errorf("translation failed: %w", res.err)
		}
		if res.resp == nil {
			return nil, errors.New("translation failed: engine returned no result")
		}
		return res.resp, nil
	case <-callCtx.Done():
		if ctx.Err() == nil {
			return nil, c.timeoutError()
		}
		return nil, fmt.Errorf("translation interrupted: %w", ctx.Err())
	}
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) timeoutError() error {
	return fmt.Errorf("translation timed out after %s", c.timeout)
}
