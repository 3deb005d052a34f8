package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"horse.fit/mtgate/internal/locale"
	"horse.fit/mtgate/internal/translation"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceIDs struct {
	next atomic.Int64
}

func (s *sequenceIDs) NewID() ID {
	return ID(fmt.Sprintf("job-%d", s.next.Add(1)))
}

// gateProvider blocks every call until release is closed.
type gateProvider struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	next    translation.Provider
}

func newGateProvider() *gateProvider {
	return &gateProvider{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		next:    translation.NewLoopbackProvider(0),
	}
}

func (p *gateProvider) Name() string { return "gate" }

func (p *gateProvider) Open() {
	p.once.Do(func() { close(p.release) })
}

func (p *gateProvider) Translate(ctx context.Context, req translation.Request) (*translation.Response, error) {
	p.entered <- struct{}{}
	<-p.release
	return p.next.Translate(ctx, req)
}

type countingObserver struct {
	submitted atomic.Int64
	rejected  atomic.Int64
	started   atomic.Int64
	finished  atomic.Int64
}

func (o *countingObserver) JobSubmitted(Job) { o.submitted.Add(1) }
func (o *countingObserver) JobRejected(error) { o.rejected.Add(1) }
func (o *countingObserver) JobStarted(Job) { o.started.Add(1) }
func (o *countingObserver) JobFinished(Job, time.Duration) { o.finished.Add(1) }

// startPanicObserver panics whenever a job starts running.
type startPanicObserver struct{}

func (startPanicObserver) JobSubmitted(Job) {}
func (startPanicObserver) JobRejected(error) {}
func (startPanicObserver) JobStarted(Job) { panic("observer exploded") }
func (startPanicObserver) JobFinished(Job, time.Duration) {}

type controllerSetup struct {
	registry RegistryOptions
	pool     PoolOptions
	options  Options
}

func newTestController(t *testing.T, engine translation.Provider, setup controllerSetup) *Controller {
	t.Helper()

	setup.registry.Logger = zerolog.Nop()
	setup.pool.Logger = zerolog.Nop()
	setup.options.Logger = zerolog.Nop()
	if setup.options.IDs == nil {
		setup.options.IDs = &sequenceIDs{}
	}

	c := NewController(NewRegistry(setup.registry), NewPool(setup.pool), engine, setup.options)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

func threeSegmentRequest() translation.Request {
	first := "s1"
	return translation.Request{
		SourceLanguage: locale.MustParse("en"),
		TargetLanguage: locale.MustParse("de"),
		Segments: []translation.Segment{
			{Idx: &first, Text: "Hello"},
			{Text: "Good morning"},
			{Text: "Thank you", Metadata: map[string]any{"k": "v"}},
		},
	}
}

func waitTerminal(t *testing.T, c *Controller, id ID) Status {
	t.Helper()

	var status Status
	require.Eventually(t, func() bool {
		var err error
		status, err = c.QueryStatus(id)
		require.NoError(t, err)
		return status.Status != StatusRunning
	}, 5*time.Second, 5*time.Millisecond)
	return status
}
