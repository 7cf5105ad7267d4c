package storage

import (
	"context"
	"time"

	"github.com/yourname/focustracker/internal"
)

// SessionRepository is the Datastore contract for Pomodoro sessions. The
// backend must reject a second active session per user (SaveSession returns
// internal.ErrActiveConflict) and must implement the conditional transitions
// atomically so that concurrent callers observe exactly one winner.
type SessionRepository interface {
	SaveSession(ctx context.Context, s *internal.PomodoroSession) error
	UpdateSession(ctx context.Context, s *internal.PomodoroSession) error
	GetSession(ctx context.Context, id string) (*internal.PomodoroSession, error)
	ListSessions(ctx context.Context, userID string) ([]internal.PomodoroSession, error)
	// ActiveSession returns the user's active session, or the earliest
	// scheduled session whose start time has passed, or nil.
	ActiveSession(ctx context.Context, userID string, now time.Time) (*internal.PomodoroSession, error)
	// StopActiveSessions force-stops every active or paused session the user
	// owns and returns the stopped rows.
	StopActiveSessions(ctx context.Context, userID string, at time.Time) ([]internal.PomodoroSession, error)
	// CompleteIfActive transitions the session to completed only if it is
	// still active. Returns false without error when the guard fails.
	CompleteIfActive(ctx context.Context, id string, completedAt time.Time) (bool, error)
	// PauseIfActive transitions the session to paused only if it is still
	// active, so a terminal state landed by another device stays final.
	PauseIfActive(ctx context.Context, id string, pausedAt time.Time) (bool, error)
	// ResumeIfPaused transitions the session back to active, sliding its end
	// time by the paused duration. Returns internal.ErrActiveConflict when
	// another session already holds the user's active slot.
	ResumeIfPaused(ctx context.Context, id string, at time.Time) (bool, error)
	// StopIfLive transitions the session to stopped only if it is still
	// active or paused. Returns false without error when the guard fails.
	StopIfLive(ctx context.Context, id string, stoppedAt time.Time) (bool, error)
	// ActivateIfScheduled promotes a scheduled session to active only if it
	// is still scheduled.
	ActivateIfScheduled(ctx context.Context, id string, at time.Time) (bool, error)
}

type StatsRepository interface {
	SaveStats(ctx context.Context, st *internal.UserStats) error
	GetStats(ctx context.Context, userID string) (*internal.UserStats, error)
}

type PreferenceRepository interface {
	SavePreferences(ctx context.Context, p *internal.UserPreferences) error
	GetPreferences(ctx context.Context, userID string) (*internal.UserPreferences, error)
}

type MeetingRepository interface {
	SaveMeeting(ctx context.Context, m *internal.Meeting) error
	GetMeeting(ctx context.Context, id string) (*internal.Meeting, error)
	ListMeetings(ctx context.Context, userID string) ([]internal.Meeting, error)
	DeleteMeeting(ctx context.Context, userID, id string) (bool, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *internal.User) error
	GetUser(ctx context.Context, id string) (*internal.User, error)
	GetUserByUsername(ctx context.Context, username string) (*internal.User, error)
}

type AuthSessionRepository interface {
	SaveAuthSession(ctx context.Context, a *internal.AuthSession) error
	GetAuthSession(ctx context.Context, token string) (*internal.AuthSession, error)
	DeleteAuthSession(ctx context.Context, token string) error
}

// Store bundles every repository a backend provides.
type Store interface {
	SessionRepository
	StatsRepository
	PreferenceRepository
	MeetingRepository
	UserRepository
	AuthSessionRepository
	Close() error
}
