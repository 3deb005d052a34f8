package jobs

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/mtgate/internal/translation"
)

func newTestRegistry(clock *fakeClock, sliding bool) *Registry {
	return NewRegistry(RegistryOptions{
		Retention: 35 * time.Minute,
		Sliding:   sliding,
		Now:       clock.Now,
	})
}

func TestRegistry_PutThenGet(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := newTestRegistry(clock, false)

	job, err := r.Put("a", threeSegmentRequest())
	require.NoError(t, err)
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, 3, job.Segments)
	assert.Equal(t, clock.Now().Add(35*time.Minute), job.ExpiresAt)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, job, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RejectsDuplicateAndEmptyID(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock(), false)

	_, err := r.Put("a", translation.Request{})
	require.NoError(t, err)

	_, err = r.Put("a", translation.Request{})
	assert.Equal(t, KindInternal, KindOf(err))

	_, err = r.Put("  ", translation.Request{})
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_UnknownIDIsNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock(), false)

	_, err := r.Get("does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = r.MarkRunning("does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.UpdateTerminal("does-not-exist", Failed("x"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ExpiredEntryIsInvisibleThenSwept(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := newTestRegistry(clock, false)

	_, err := r.Put("a", threeSegmentRequest())
	require.NoError(t, err)
	_, _, err = r.MarkRunning("a")
	require.NoError(t, err)
	_, err = r.UpdateTerminal("a", Failed("boom"))
	require.NoError(t, err)

	clock.Advance(34 * time.Minute)
	_, err = r.Get("a")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = r.Get("a")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, r.Len(), "expired entry stays stored until swept")

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Sweep())
}

func TestRegistry_FixedRetentionIgnoresReads(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := newTestRegistry(clock, false)

	_, err := r.Put("a", translation.Request{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clock.Advance(10 * time.Minute)
		_, err = r.Get("a")
		require.NoError(t, err)
	}

	clock.Advance(10 * time.Minute)
	_, err = r.Get("a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_SlidingRetentionExtendsOnRead(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := newTestRegistry(clock, true)

	_, err := r.Put("a", translation.Request{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		clock.Advance(30 * time.Minute)
		_, err = r.Get("a")
		require.NoError(t, err)
	}

	clock.Advance(36 * time.Minute)
	_, err = r.Get("a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_TerminalOutcomeIsWrittenOnce(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock(), false)

	_, err := r.Put("a", threeSegmentRequest())
	require.NoError(t, err)

	_, req, err := r.MarkRunning("a")
	require.NoError(t, err)
	assert.Len(t, req.Segments, 3)

	_, _, err = r.MarkRunning("a")
	assert.Equal(t, KindInternal, KindOf(err))

	resp := &translation.Response{Segments: []translation.TranslatedSegment{{Text: "x", TranslatedText: "y"}}}
	job, err := r.UpdateTerminal("a", Succeeded(resp))
	require.NoError(t, err)
	assert.Equal(t, StateDone, job.State)

	_, err = r.UpdateTerminal("a", Failed("late failure"))
	assert.Equal(t, KindInternal, KindOf(err))

	job, err = r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StateDone, job.State)
	require.NotNil(t, job.Outcome)
	assert.Same(t, resp, job.Outcome.Response)
}

func TestRegistry_EmptyOutcomeBecomesFailure(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock(), false)
	_, err := r.Put("a", translation.Request{})
	require.NoError(t, err)

	job, err := r.UpdateTerminal("a", Outcome{})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, job.State)
	assert.NotEmpty(t, job.Outcome.Detail)
}

func TestRegistry_RemoveDeletesEntry(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock(), false)
	_, err := r.Put("a", translation.Request{})
	require.NoError(t, err)

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.Equal(t, 0, r.Len())

	_, err = r.Get("a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_SweepRacesTerminalWrites(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := newTestRegistry(clock, false)

	const n = 200
	for i := 0; i < n; i++ {
		id := ID(strings.Repeat("x", i+1))
		_, err := r.Put(id, translation.Request{})
		require.NoError(t, err)
		_, _, err = r.MarkRunning(id)
		require.NoError(t, err)
	}
	clock.Advance(time.Hour)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, _ = r.UpdateTerminal(ID(strings.Repeat("x", i+1)), Failed("late"))
		}
	}()
	go func() {
		defer wg.Done()
		r.Sweep()
	}()
	wg.Wait()

	r.Sweep()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_StartSweeperRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	r := NewRegistry(RegistryOptions{SweepSchedule: "every minute please"})
	require.Error(t, r.StartSweeper())
	r.StopSweeper()
}

func TestSanitizeDetail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", sanitizeDetail("  \n "))
	assert.Equal(t, "bad\tinput", sanitizeDetail("bad\x00\tinput\x07"))

	long := sanitizeDetail(strings.Repeat("é", 3000))
	assert.True(t, strings.HasSuffix(long, "...(truncated)"))
	assert.LessOrEqual(t, len(long), maxDetailLength+len("...(truncated)"))
}
