// Package audit persists async job transitions to the translation_jobs table.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/mtgate/internal/db"
	"horse.fit/mtgate/internal/jobs"
)

const (
	defaultBuffer       = 256
	defaultWriteTimeout = 5 * time.Second
)

type phase int

const (
	phaseSubmitted phase = iota
	phaseStarted
	phaseFinished
)

type event struct {
	phase  phase
	params db.UpsertTranslationJobParams
}

// Store is the subset of *db.Pool the ledger writes through.
type Store interface {
	InsertTranslationJob(ctx context.Context, params db.UpsertTranslationJobParams) error
	MarkTranslationJobStarted(ctx context.Context, params db.UpsertTranslationJobParams) error
	MarkTranslationJobFinished(ctx context.Context, params db.UpsertTranslationJobParams) error
}

type Options struct {
	// Buffer bounds pending writes; events beyond it are dropped and counted.
	Buffer       int
	WriteTimeout time.Duration
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Ledger is a jobs.Observer that records transitions on a single writer
// goroutine so workers never wait on the database.
type Ledger struct {
	store   Store
	events  chan event
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

func NewLedger(store Store, opts Options) *Ledger {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	l := &Ledger{
		store:   store,
		events:  make(chan event, buffer),
		timeout: timeout,
		logger:  opts.Logger,
		now:     now,
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Close stops intake and waits until buffered events are written or ctx ends.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (l *Ledger) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Ledger) JobSubmitted(job jobs.Job) {
	l.enqueue(event{phase: phaseSubmitted, params: baseParams(job, "pending")})
}

func (l *Ledger) JobRejected(error) {}

func (l *Ledger) JobStarted(job jobs.Job) {
	params := baseParams(job, string(jobs.StateRunning))
	started := l.now()
	params.StartedAt = &started
	l.enqueue(event{phase: phaseStarted, params: params})
}

func (l *Ledger) JobFinished(job jobs.Job, elapsed time.Duration) {
	params := baseParams(job, string(job.State))
	finished := l.now()
	params.FinishedAt = &finished
	durationMS := elapsed.Milliseconds()
	params.DurationMS = &durationMS
	if job.Outcome != nil && job.Outcome.Detail != "" {
		detail := job.Outcome.Detail
		params.Detail = &detail
	}
	l.enqueue(event{phase: phaseFinished, params: params})
}

func (l *Ledger) enqueue(ev event) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return
	}
	select {
	case l.events <- ev:
	default:
		l.dropped.Add(1)
		l.logger.Warn().
			Str("job_id", ev.params.JobID).
			Str("state", ev.params.State).
			Msg("audit buffer full; dropping job event")
	}
}

func (l *Ledger) run() {
	defer close(l.done)
	for ev := range l.events {
		l.write(ev)
	}
}

func (l *Ledger) write(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	var err error
	switch ev.phase {
	case phaseSubmitted:
		err = l.store.InsertTranslationJob(ctx, ev.params)
	case phaseStarted:
		err = l.store.MarkTranslationJobStarted(ctx, ev.params)
	case phaseFinished:
		err = l.store.MarkTranslationJobFinished(ctx, ev.params)
	}
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("job_id", ev.params.JobID).
			Str("state", ev.params.State).
			Msg("audit write failed")
	}
}

func baseParams(job jobs.Job, state string) db.UpsertTranslationJobParams {
	return db.UpsertTranslationJobParams{
		JobID:          job.ID.String(),
		State:          state,
		SourceLanguage: job.Source.String(),
		TargetLanguage: job.Target.String(),
		SegmentCount:   job.Segments,
		SubmittedAt:    job.SubmittedAt,
	}
}
