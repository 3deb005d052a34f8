package jobs

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"horse.fit/mtgate/internal/globaltime"
	"horse.fit/mtgate/internal/locale"
	"horse.fit/mtgate/internal/translation"
)

const (
	DefaultRetention     = 35 * time.Minute
	DefaultSweepSchedule = "@every 1m"
)

type RegistryOptions struct {
	// Retention is how long an entry stays visible after submission.
	Retention time.Duration
	// Sliding pushes the expiry forward on every successful read.
	Sliding bool
	// SweepSchedule is a cron spec for physical eviction of expired entries.
	SweepSchedule string
	Now           func() time.Time
	Logger        zerolog.Logger
}

// Registry maps job ids to their lifecycle state. Entries become invisible
// once expired and are physically removed by Sweep.
type Registry struct {
	entries   sync.Map
	size      atomic.Int64
	retention time.Duration
	sliding   bool
	schedule  string
	now       func() time.Time
	logger    zerolog.Logger

	cronMu sync.Mutex
	cron   *cron.Cron
}

type entry struct {
	mu          sync.Mutex
	id          ID
	submittedAt time.Time
	expiresAt   time.Time
	state       State
	request     *translation.Request
	source      locale.Locale
	target      locale.Locale
	segments    int
	outcome     *Outcome
	removed     bool
}

func NewRegistry(opts RegistryOptions) *Registry {
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	schedule := strings.TrimSpace(opts.SweepSchedule)
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	now := opts.Now
	if now == nil {
		now = globaltime.UTC
	}

	return &Registry{
		retention: retention,
		sliding:   opts.Sliding,
		schedule:  schedule,
		now:       now,
		logger:    opts.Logger,
	}
}

// Put registers a new pending job. The request is owned by the registry
// until the job starts.
func (r *Registry) Put(id ID, req translation.Request) (Job, error) {
	if strings.TrimSpace(string(id)) == "" {
		return Job{}, internalf(id, "empty job id")
	}

	now := r.now()
	e := &entry{
		id:          id,
		submittedAt: now,
		expiresAt:   now.Add(r.retention),
		state:       StatePending,
		request:     &req,
		source:      req.SourceLanguage,
		target:      req.TargetLanguage,
		segments:    len(req.Segments),
	}
	if _, loaded := r.entries.LoadOrStore(id, e); loaded {
		return Job{}, internalf(id, "job id already registered")
	}
	r.size.Add(1)

	return e.snapshot(), nil
}

// Get returns a snapshot of a live job. Expired and removed entries are reported as not found.
func (r *Registry) Get(id ID) (Job, error) {
	e, ok := r.load(id)
	if !ok {
		return Job{}, notFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := r.now()
	if e.removed || !now.Before(e.expiresAt) {
		return Job{}, notFound(id)
	}
	if r.sliding {
		e.expiresAt = now.Add(r.retention)
	}
	return e.snapshot(), nil
}

// MarkRunning moves a pending job to running and hands its request to the caller.
func (r *Registry) MarkRunning(id ID) (Job, translation.Request, error) {
	e, ok := r.load(id)
	if !ok {
		return Job{}, translation.Request{}, notFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || !r.now().Before(e.expiresAt) {
		return Job{}, translation.Request{}, notFound(id)
	}
	if e.state != StatePending {
		return Job{}, translation.Request{}, internalf(id, "cannot start job in state %s", e.state)
	}
	if e.request == nil {
		return Job{}, translation.Request{}, internalf(id, "job has no request")
	}

	req := *e.request
	e.request = nil
	e.state = StateRunning
	return e.snapshot(), req, nil
}

// UpdateTerminal records the single terminal outcome of a job. A second
// write is rejected and leaves the stored outcome untouched.
func (r *Registry) UpdateTerminal(id ID, outcome Outcome) (Job, error) {
	if outcome.Response == nil && outcome.Detail == "" {
		outcome = Failed("")
	}

	e, ok := r.load(id)
	if !ok {
		return Job{}, notFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return Job{}, notFound(id)
	}
	if e.state.Terminal() {
		return Job{}, internalf(id, "terminal result already recorded as %s", e.state)
	}

	e.outcome = &outcome
	e.state = outcome.state()
	e.request = nil
	return e.snapshot(), nil
}

// Remove deletes an entry regardless of its state.
func (r *Registry) Remove(id ID) bool {
	e, ok := r.load(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return r.evictLocked(e)
}

// Sweep physically removes every expired entry and returns how many were evicted.
func (r *Registry) Sweep() int {
	now := r.now()
	evicted := 0
	r.entries.Range(func(_, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		if !now.Before(e.expiresAt) && r.evictLocked(e) {
			evicted++
		}
		e.mu.Unlock()
		return true
	})
	return evicted
}

// Len reports the number of physically stored entries, including expired ones not yet swept.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// StartSweeper schedules Sweep on the configured cron spec.
func (r *Registry) StartSweeper() error {
	r.cronMu.Lock()
	defer r.cronMu.Unlock()

	if r.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() {
		evicted := r.Sweep()
		if evicted > 0 {
			r.logger.Debug().
				Int("evicted", evicted).
				Int("remaining", r.Len()).
				Msg("expired jobs evicted")
		}
	}); err != nil {
		return fmt.Errorf("schedule job sweeper %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// StopSweeper stops the schedule and waits for a running sweep to finish.
func (r *Registry) StopSweeper() {
	r.cronMu.Lock()
	c := r.cron
	r.cron = nil
	r.cronMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (r *Registry) load(id ID) (*entry, bool) {
	value, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*entry), true
}

// evictLocked must be called with e.mu held.
func (r *Registry) evictLocked(e *entry) bool {
	if e.removed {
		return false
	}
	e.removed = true
	e.request = nil
	if r.entries.CompareAndDelete(e.id, e) {
		r.size.Add(-1)
	}
	return true
}

func (e *entry) snapshot() Job {
	job := Job{
		ID:          e.id,
		SubmittedAt: e.submittedAt,
		ExpiresAt:   e.expiresAt,
		State:       e.state,
		Source:      e.source,
		Target:      e.target,
		Segments:    e.segments,
	}
	if e.outcome != nil {
		outcome := *e.outcome
		job.Outcome = &outcome
	}
	return job
}
