// Package syncer keeps the local view of sessions and stats consistent with
// the datastore across concurrent writers. Writes are optimistic: the local
// projection and the change feed see the effect immediately, while the
// datastore write happens with a bounded timeout and falls back to a durable
// retry queue. Conflicts between a local optimistic copy and a server echo
// are resolved last-write-wins, except that a local terminal status is never
// reverted by a non-terminal server record.
package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/metrics"
	"github.com/yourname/focustracker/internal/realtime"
	"github.com/yourname/focustracker/internal/storage"
)

type Coordinator struct {
	sessions storage.SessionRepository
	stats    storage.StatsRepository
	hub      *realtime.Hub
	queue    *Queue
	logger   internal.Logger

	timeout        time.Duration
	flushInterval  time.Duration
	conflictWindow time.Duration

	proj *projection
	now  func() time.Time
}

type Options struct {
	Timeout        time.Duration // per-operation datastore deadline
	FlushInterval  time.Duration // retry-queue drain period
	ConflictWindow time.Duration // updates closer than this count as concurrent
}

func New(sessions storage.SessionRepository, stats storage.StatsRepository,
	hub *realtime.Hub, queue *Queue, logger internal.Logger, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}
	if opts.ConflictWindow <= 0 {
		opts.ConflictWindow = 3 * time.Second
	}
	return &Coordinator{
		sessions:       sessions,
		stats:          stats,
		hub:            hub,
		queue:          queue,
		logger:         logger,
		timeout:        opts.Timeout,
		flushInterval:  opts.FlushInterval,
		conflictWindow: opts.ConflictWindow,
		proj:           newProjection(),
		now:            time.Now,
	}
}

// ApplySession applies a session write optimistically: projection first,
// change feed second, datastore last (queued on failure). The caller never
// waits longer than the datastore timeout.
func (c *Coordinator) ApplySession(ctx context.Context, sess *internal.PomodoroSession, ev realtime.EventType) {
	old := c.proj.putSession(sess)
	c.hub.Publish(realtime.Event{
		Type: ev, Table: realtime.TableSessions, UserID: sess.UserID, Old: old, New: sess,
	})
	kind := OpUpdateSession
	if ev == realtime.EventInsert {
		kind = OpSaveSession
	}
	c.executeOrQueue(ctx, Op{
		ID:         uuid.NewString(),
		Kind:       kind,
		Session:    sess,
		EnqueuedAt: c.now(),
	})
}

// ApplyStats mirrors ApplySession for the stats cache.
func (c *Coordinator) ApplyStats(ctx context.Context, st *internal.UserStats) {
	old := c.proj.putStats(st)
	c.hub.Publish(realtime.Event{
		Type: realtime.EventUpdate, Table: realtime.TableStats, UserID: st.UserID, Old: old, New: st,
	})
	c.executeOrQueue(ctx, Op{
		ID:         uuid.NewString(),
		Kind:       OpSaveStats,
		Stats:      st,
		EnqueuedAt: c.now(),
	})
}

func (c *Coordinator) executeOrQueue(ctx context.Context, op Op) {
	if err := c.execute(ctx, op); err != nil {
		c.logger.Warnf("syncer: datastore write failed, queueing op %s (%s): %v", op.ID, op.Kind, err)
		c.queue.Enqueue(op)
	}
}

func (c *Coordinator) execute(parent context.Context, op Op) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()
	switch op.Kind {
	case OpSaveSession:
		err := c.sessions.SaveSession(ctx, op.Session)
		if err == internal.ErrActiveConflict {
			// Another device won the active slot; retrying the insert can
			// never succeed. The feed echo of the real active session will
			// correct the projection.
			metrics.ConflictsResolved.Inc()
			c.logger.Warnf("syncer: active-session conflict persisting %s, dropping insert", op.Session.ID)
			return nil
		}
		return err
	case OpUpdateSession:
		err := c.sessions.UpdateSession(ctx, op.Session)
		if err == internal.ErrNotFound {
			// Record vanished server-side; recreate it rather than spin.
			return c.sessions.SaveSession(ctx, op.Session)
		}
		if err == internal.ErrActiveConflict {
			// The active slot is taken; retrying this update can never
			// succeed either. Same treatment as a conflicting insert.
			metrics.ConflictsResolved.Inc()
			c.logger.Warnf("syncer: active-session conflict updating %s, dropping update", op.Session.ID)
			return nil
		}
		return err
	case OpSaveStats:
		return c.stats.SaveStats(ctx, op.Stats)
	}
	c.logger.Errorf("syncer: unknown op kind %q", op.Kind)
	return nil
}

// Reconcile resolves a local optimistic copy against a server-delivered
// record for the same session. Rules, in order: a local terminal status
// beats a non-terminal server record regardless of timestamps; otherwise
// last-write-wins by UpdatedAt with ties going to the server.
func (c *Coordinator) Reconcile(local, server *internal.PomodoroSession) *internal.PomodoroSession {
	if local == nil {
		return server
	}
	if server == nil {
		return local
	}
	if local.Status.Terminal() && !server.Status.Terminal() {
		metrics.ConflictsResolved.Inc()
		c.logger.Infof("syncer: kept local terminal state %s for session %s over stale server echo",
			local.Status, local.ID)
		return local
	}
	if server.UpdatedAt.Before(local.UpdatedAt) {
		metrics.ConflictsResolved.Inc()
		return local
	}
	return server
}

// OnChangeEvent ingests a server-pushed change for a subscribed table.
// Session updates landing within the conflict window of a local optimistic
// write are reconciled instead of blindly applied; the winning version is
// re-broadcast so feed subscribers converge.
func (c *Coordinator) OnChangeEvent(ev realtime.Event) {
	switch ev.Table {
	case realtime.TableSessions:
		server, ok := ev.New.(*internal.PomodoroSession)
		if !ok {
			c.logger.Warnf("syncer: malformed session change event (%T)", ev.New)
			return
		}
		local, _ := c.proj.session(server.ID)
		winner := server
		if local != nil && absDuration(server.UpdatedAt.Sub(local.UpdatedAt)) <= c.conflictWindow {
			winner = c.Reconcile(local, server)
		}
		c.proj.putSession(winner)
		c.hub.Publish(realtime.Event{
			Type: ev.Type, Table: ev.Table, UserID: winner.UserID, Old: local, New: winner,
		})
	case realtime.TableStats:
		st, ok := ev.New.(*internal.UserStats)
		if !ok {
			c.logger.Warnf("syncer: malformed stats change event (%T)", ev.New)
			return
		}
		old := c.proj.putStats(st)
		c.hub.Publish(realtime.Event{
			Type: ev.Type, Table: ev.Table, UserID: st.UserID, Old: old, New: st,
		})
	default:
		c.hub.Publish(ev)
	}
}

// CachedSession returns the projected copy, if any.
func (c *Coordinator) CachedSession(id string) (*internal.PomodoroSession, bool) {
	return c.proj.session(id)
}

// CachedStats returns the projected stats for a user, if any.
func (c *Coordinator) CachedStats(userID string) (*internal.UserStats, bool) {
	return c.proj.stats(userID)
}

// Flush drains the retry queue once.
func (c *Coordinator) Flush(ctx context.Context) int {
	return c.queue.Drain(func(op Op) error {
		return c.execute(ctx, op)
	})
}

// PendingOps reports the retry-queue depth.
func (c *Coordinator) PendingOps() int {
	return c.queue.Len()
}

// Run drains the retry queue on the flush interval until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := c.Flush(ctx); n > 0 {
				c.logger.Infof("syncer: flushed %d queued ops", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
