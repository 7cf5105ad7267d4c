package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/realtime"
	"github.com/yourname/focustracker/internal/storage"
	"github.com/yourname/focustracker/internal/syncer"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store *storage.FileStore
	svc   *SessionService
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := internal.NopLogger{}
	store, err := storage.NewFileStore(t.TempDir(), logger)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue, err := syncer.NewQueue(filepath.Join(t.TempDir(), "ops.json"), 3, logger)
	assert.NoError(t, err)
	hub := realtime.NewHub(logger)
	coord := syncer.New(store, store, hub, queue, logger, syncer.Options{})

	clock := &fakeClock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := NewSessionService(store, store, coord, logger)
	svc.now = clock.Now
	return &fixture{store: store, svc: svc, clock: clock}
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "write report", DurationMinutes: 25})
	assert.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, internal.StatusActive, sess.Status)
	assert.Equal(t, sess.StartTime.Add(25*time.Minute), sess.EndTime)

	active, err := f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.NotNil(t, active)
	assert.Equal(t, sess.ID, active.ID)
}

func TestStartSessionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "x", DurationMinutes: 0})
	assert.Equal(t, internal.ErrInvalidDuration, err)

	_, err = f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "x", DurationMinutes: 241})
	assert.Equal(t, internal.ErrInvalidDuration, err)

	_, err = f.svc.Start(ctx, "u1", &StartSessionRequest{DurationMinutes: 25})
	assert.Error(t, err)
}

func TestStartSupersedesExistingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "first", DurationMinutes: 25})
	assert.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	second, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "second", DurationMinutes: 25})
	assert.NoError(t, err)

	prev, err := f.store.GetSession(ctx, first.ID)
	assert.NoError(t, err)
	assert.Equal(t, internal.StatusStopped, prev.Status)
	assert.NotNil(t, prev.StoppedAt)

	active, err := f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	list, err := f.svc.List(ctx, "u1")
	assert.NoError(t, err)
	actives := 0
	for _, s := range list {
		if s.Status == internal.StatusActive {
			actives++
		}
	}
	assert.Equal(t, 1, actives)
}

func TestScheduledSessionPromotesOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	at := f.clock.Now().Add(30 * time.Minute)
	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{
		Title: "later", DurationMinutes: 25, ScheduledTime: &at,
	})
	assert.NoError(t, err)
	assert.Equal(t, internal.StatusScheduled, sess.Status)
	assert.Equal(t, at, sess.StartTime)

	// Not yet due.
	active, err := f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.Nil(t, active)

	f.clock.Advance(31 * time.Minute)
	active, err = f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.NotNil(t, active)
	assert.Equal(t, internal.StatusActive, active.Status)

	stored, err := f.store.GetSession(ctx, sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, internal.StatusActive, stored.Status)
}

func TestPauseAndResumeExtendsEndTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)
	originalEnd := sess.EndTime

	f.clock.Advance(10 * time.Minute)
	paused, err := f.svc.Pause(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, internal.StatusPaused, paused.Status)
	assert.NotNil(t, paused.PausedAt)

	f.clock.Advance(5 * time.Minute)
	resumed, err := f.svc.Resume(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, internal.StatusActive, resumed.Status)
	assert.Nil(t, resumed.PausedAt)
	assert.Equal(t, originalEnd.Add(5*time.Minute), resumed.EndTime)
}

func TestResumeCannotCreateSecondActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A scheduled session waits while an immediate one runs and is paused.
	at := f.clock.Now().Add(30 * time.Minute)
	_, err := f.svc.Start(ctx, "u1", &StartSessionRequest{
		Title: "later", DurationMinutes: 25, ScheduledTime: &at,
	})
	assert.NoError(t, err)
	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "now", DurationMinutes: 25})
	assert.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.Pause(ctx, "u1", sess.ID)
	assert.NoError(t, err)

	// The scheduled session promotes to active once its start passes.
	f.clock.Advance(26 * time.Minute)
	promoted, err := f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.NotNil(t, promoted)
	assert.Equal(t, internal.StatusActive, promoted.Status)

	// Resuming the paused session now would mean two active sessions.
	_, err = f.svc.Resume(ctx, "u1", sess.ID)
	assert.Equal(t, internal.ErrActiveConflict, err)

	list, err := f.svc.List(ctx, "u1")
	assert.NoError(t, err)
	actives := 0
	for _, s := range list {
		if s.Status == internal.StatusActive {
			actives++
		}
	}
	assert.Equal(t, 1, actives)

	// The losing session is still paused, not corrupted.
	kept, err := f.store.GetSession(ctx, sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, internal.StatusPaused, kept.Status)
}

func TestPauseLosesToConcurrentCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)

	// Another device completes between this device's read and its pause.
	won, err := f.store.CompleteIfActive(ctx, sess.ID, f.clock.Now())
	assert.NoError(t, err)
	assert.True(t, won)

	_, err = f.svc.Pause(ctx, "u1", sess.ID)
	assert.Equal(t, internal.ErrInvalidTransition, err)

	got, err := f.store.GetSession(ctx, sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, internal.StatusCompleted, got.Status)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)

	_, err = f.svc.Resume(ctx, "u1", sess.ID)
	assert.Equal(t, internal.ErrInvalidTransition, err)

	_, applied, err := f.svc.Complete(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	assert.True(t, applied)

	_, err = f.svc.Pause(ctx, "u1", sess.ID)
	assert.Equal(t, internal.ErrInvalidTransition, err)
}

func TestCompleteIsRaceTolerant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)

	done, applied, err := f.svc.Complete(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, internal.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.False(t, done.AutoCompleted)

	// Second device completing the same session is not an error.
	_, applied, err = f.svc.Complete(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	assert.False(t, applied)

	// Unknown id and foreign owner are the same benign outcome.
	_, applied, err = f.svc.Complete(ctx, "u1", "no-such-session")
	assert.NoError(t, err)
	assert.False(t, applied)
	_, applied, err = f.svc.Complete(ctx, "u2", sess.ID)
	assert.NoError(t, err)
	assert.False(t, applied)

	stats, err := f.store.GetStats(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedSessions)
}

func TestStopFromPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)
	_, err = f.svc.Pause(ctx, "u1", sess.ID)
	assert.NoError(t, err)

	stopped, applied, err := f.svc.Stop(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, internal.StatusStopped, stopped.Status)
	assert.NotNil(t, stopped.StoppedAt)

	_, applied, err = f.svc.Stop(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestAutoCompletionOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)

	f.clock.Advance(26 * time.Minute)
	got, err := f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, internal.StatusCompleted, got.Status)
	assert.True(t, got.AutoCompleted)
	// completed_at is the scheduled end, not the read time.
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, sess.EndTime, *got.CompletedAt)

	// The expired session is gone from the active slot.
	next, err := f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.Nil(t, next)

	stats, err := f.store.GetStats(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, 25, stats.CompletedMinutes)
}

func TestAutoCompletionExactlyOnceUnderConcurrentReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	var wg sync.WaitGroup
	results := make([]*internal.PomodoroSession, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := f.svc.GetActive(ctx, "u1")
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	flagged := 0
	for _, got := range results {
		if got == nil {
			continue
		}
		assert.Equal(t, internal.StatusCompleted, got.Status)
		if got.AutoCompleted {
			flagged++
		}
	}
	assert.Equal(t, 1, flagged)

	stats, err := f.store.GetStats(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedSessions)
}

func TestFullSessionScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{
		Title: "deep work", Tags: "writing", Location: "office", DurationMinutes: 25,
	})
	assert.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.Pause(ctx, "u1", sess.ID)
	assert.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	resumed, err := f.svc.Resume(ctx, "u1", sess.ID)
	assert.NoError(t, err)

	// Run out the remaining window plus the pause extension.
	f.clock.Advance(resumed.EndTime.Sub(f.clock.Now()) + time.Second)
	got, err := f.svc.GetActive(ctx, "u1")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.True(t, got.AutoCompleted)

	stats, err := f.store.GetStats(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, 100, stats.CompletionRate)
	assert.Equal(t, 1, stats.StreakDays)
	assert.Equal(t, internal.StatsBucket{Count: 1, Minutes: 25, Completed: 1}, stats.ByTag["writing"])
}

func TestOwnershipChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, "u1", &StartSessionRequest{Title: "focus", DurationMinutes: 25})
	assert.NoError(t, err)

	_, err = f.svc.Pause(ctx, "u2", sess.ID)
	assert.Equal(t, internal.ErrNotFound, err)
	_, err = f.svc.Pause(ctx, "u1", "missing")
	assert.Equal(t, internal.ErrNotFound, err)
}
