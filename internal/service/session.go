package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/metrics"
	"github.com/yourname/focustracker/internal/realtime"
	"github.com/yourname/focustracker/internal/storage"
	"github.com/yourname/focustracker/internal/syncer"
)

var validate = validator.New()

type StartSessionRequest struct {
	Title           string     `json:"title" validate:"required"`
	Goal            string     `json:"goal,omitempty"`
	Tags            string     `json:"tags,omitempty"`
	Location        string     `json:"location,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	ScheduledTime   *time.Time `json:"scheduled_time,omitempty"`
}

func ValidateStartSessionRequest(req *StartSessionRequest) error {
	if req.DurationMinutes < 1 || req.DurationMinutes > 240 {
		return internal.ErrInvalidDuration
	}
	return validate.Struct(req)
}

// SessionService is the session lifecycle: the only code that moves a
// session between states. New sessions and stats go through the sync
// coordinator as optimistic writes; every state transition is a guarded
// repository update, so racing devices observe exactly one winner and a
// terminal state is never overwritten. Transition outcomes are broadcast
// on the change feed.
type SessionService struct {
	repo      storage.SessionRepository
	statsRepo storage.StatsRepository
	coord     *syncer.Coordinator
	logger    internal.Logger
	now       func() time.Time
}

func NewSessionService(repo storage.SessionRepository, statsRepo storage.StatsRepository,
	coord *syncer.Coordinator, logger internal.Logger) *SessionService {
	return &SessionService{
		repo:      repo,
		statsRepo: statsRepo,
		coord:     coord,
		logger:    logger,
		now:       time.Now,
	}
}

// Start creates a session for the user. Any session the user already has in
// flight is force-stopped first; superseding is how the single-active
// invariant is kept, not an error. A scheduled_time in the future yields a
// scheduled session that auto-activates on the first read past its start.
func (s *SessionService) Start(ctx context.Context, userID string, req *StartSessionRequest) (*internal.PomodoroSession, error) {
	if err := ValidateStartSessionRequest(req); err != nil {
		return nil, err
	}
	now := s.now()
	start := now
	if req.ScheduledTime != nil {
		start = *req.ScheduledTime
	}
	status := internal.StatusActive
	if start.After(now) {
		status = internal.StatusScheduled
	}

	stopped, err := s.repo.StopActiveSessions(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	for i := range stopped {
		metrics.SessionsStopped.Inc()
		s.coord.OnChangeEvent(realtime.Event{
			Type: realtime.EventUpdate, Table: realtime.TableSessions,
			UserID: userID, New: &stopped[i],
		})
	}

	sess := &internal.PomodoroSession{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           req.Title,
		Goal:            req.Goal,
		Tags:            req.Tags,
		Location:        req.Location,
		DurationMinutes: req.DurationMinutes,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.coord.ApplySession(ctx, sess, realtime.EventInsert)
	metrics.SessionsStarted.Inc()
	s.recompute(ctx, userID)
	return sess, nil
}

// Pause is valid only from active. The guarded update means a completion
// or stop that landed first on another device stays final.
func (s *SessionService) Pause(ctx context.Context, userID, id string) (*internal.PomodoroSession, error) {
	sess, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != internal.StatusActive {
		return nil, internal.ErrInvalidTransition
	}
	now := s.now()
	won, err := s.repo.PauseIfActive(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, internal.ErrInvalidTransition
	}
	sess.Status = internal.StatusPaused
	sess.PausedAt = &now
	sess.UpdatedAt = now
	s.coord.OnChangeEvent(realtime.Event{
		Type: realtime.EventUpdate, Table: realtime.TableSessions, UserID: userID, New: sess,
	})
	return sess, nil
}

// Resume is valid only from paused; the end time slides by the paused
// duration so the user keeps their full focus window. The repository
// enforces the single-active constraint, so resuming while another session
// holds the active slot is an ErrActiveConflict, not a second active row.
func (s *SessionService) Resume(ctx context.Context, userID, id string) (*internal.PomodoroSession, error) {
	sess, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != internal.StatusPaused || sess.PausedAt == nil {
		return nil, internal.ErrInvalidTransition
	}
	now := s.now()
	won, err := s.repo.ResumeIfPaused(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, internal.ErrInvalidTransition
	}
	sess.EndTime = sess.EndTime.Add(now.Sub(*sess.PausedAt))
	sess.Status = internal.StatusActive
	sess.PausedAt = nil
	sess.UpdatedAt = now
	s.coord.OnChangeEvent(realtime.Event{
		Type: realtime.EventUpdate, Table: realtime.TableSessions, UserID: userID, New: sess,
	})
	return sess, nil
}

// Complete marks an active session completed. A session that is missing,
// not the user's, or no longer active is a benign race (another device got
// there first): Complete reports false and no error.
func (s *SessionService) Complete(ctx context.Context, userID, id string) (*internal.PomodoroSession, bool, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err == internal.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if sess.UserID != userID {
		return nil, false, nil
	}
	now := s.now()
	won, err := s.repo.CompleteIfActive(ctx, id, now)
	if err != nil {
		return nil, false, err
	}
	if !won {
		return nil, false, nil
	}
	sess.Status = internal.StatusCompleted
	sess.CompletedAt = &now
	sess.UpdatedAt = now
	s.coord.OnChangeEvent(realtime.Event{
		Type: realtime.EventUpdate, Table: realtime.TableSessions, UserID: userID, New: sess,
	})
	metrics.SessionsCompleted.Inc()
	s.recompute(ctx, userID)
	return sess, true, nil
}

// Stop halts an active or paused session. Same race tolerance as Complete.
func (s *SessionService) Stop(ctx context.Context, userID, id string) (*internal.PomodoroSession, bool, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err == internal.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if sess.UserID != userID {
		return nil, false, nil
	}
	now := s.now()
	won, err := s.repo.StopIfLive(ctx, id, now)
	if err != nil {
		return nil, false, err
	}
	if !won {
		return nil, false, nil
	}
	sess.Status = internal.StatusStopped
	sess.StoppedAt = &now
	sess.UpdatedAt = now
	s.coord.OnChangeEvent(realtime.Event{
		Type: realtime.EventUpdate, Table: realtime.TableSessions, UserID: userID, New: sess,
	})
	metrics.SessionsStopped.Inc()
	s.recompute(ctx, userID)
	return sess, true, nil
}

// GetActive returns the user's current session. Reads have side effects: a
// scheduled session past its start is promoted to active, and an active
// session past its end is completed with completed_at pinned to the end
// time. Both promotions are conditional updates, so when two readers race
// only one transition is recorded.
func (s *SessionService) GetActive(ctx context.Context, userID string) (*internal.PomodoroSession, error) {
	sess, err := s.repo.ActiveSession(ctx, userID, s.now())
	if err != nil || sess == nil {
		return nil, err
	}
	now := s.now()

	if sess.Status == internal.StatusScheduled {
		won, err := s.repo.ActivateIfScheduled(ctx, sess.ID, now)
		if err != nil {
			return nil, err
		}
		if won {
			sess.Status = internal.StatusActive
			sess.UpdatedAt = now
			s.coord.OnChangeEvent(realtime.Event{
				Type: realtime.EventUpdate, Table: realtime.TableSessions, UserID: userID, New: sess,
			})
		} else {
			sess, err = s.repo.GetSession(ctx, sess.ID)
			if err != nil {
				return nil, err
			}
		}
	}

	if sess.Status == internal.StatusActive && !now.Before(sess.EndTime) {
		won, err := s.repo.CompleteIfActive(ctx, sess.ID, sess.EndTime)
		if err != nil {
			return nil, err
		}
		if !won {
			// A concurrent reader or another device finished it first; serve
			// whatever state actually landed.
			return s.repo.GetSession(ctx, sess.ID)
		}
		completedAt := sess.EndTime
		sess.Status = internal.StatusCompleted
		sess.CompletedAt = &completedAt
		sess.UpdatedAt = completedAt
		sess.AutoCompleted = true
		metrics.SessionsAutoCompleted.Inc()
		s.coord.OnChangeEvent(realtime.Event{
			Type: realtime.EventUpdate, Table: realtime.TableSessions, UserID: userID, New: sess,
		})
		s.recompute(ctx, userID)
		return sess, nil
	}
	return sess, nil
}

// List returns the user's sessions, most recent first.
func (s *SessionService) List(ctx context.Context, userID string) ([]internal.PomodoroSession, error) {
	return s.repo.ListSessions(ctx, userID)
}

// Recompute rebuilds the user's stats cache from session history and pushes
// it through the coordinator.
func (s *SessionService) Recompute(ctx context.Context, userID string) (*internal.UserStats, error) {
	sessions, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	prior, err := s.statsRepo.GetStats(ctx, userID)
	if err != nil && err != internal.ErrNotFound {
		return nil, err
	}
	res := RecomputeStats(sessions, prior, s.now())
	if res.Skipped > 0 {
		s.logger.Warnf("stats: skipped %d malformed sessions for user %s", res.Skipped, userID)
	}
	st := res.Stats
	st.UserID = userID
	st.UpdatedAt = s.now()
	s.coord.ApplyStats(ctx, &st)
	return &st, nil
}

func (s *SessionService) recompute(ctx context.Context, userID string) {
	if _, err := s.Recompute(ctx, userID); err != nil {
		s.logger.Errorf("stats recompute failed for user %s: %v", userID, err)
	}
}

func (s *SessionService) owned(ctx context.Context, userID, id string) (*internal.PomodoroSession, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, internal.ErrNotFound
	}
	return sess, nil
}
