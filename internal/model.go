package internal

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserPreferences struct {
	UserID               string    `json:"user_id"`
	SessionMinutes       int       `json:"session_minutes"`
	BreakMinutes         int       `json:"break_minutes"`
	WeeklyGoalMinutes    int       `json:"weekly_goal_minutes"`
	Theme                string    `json:"theme"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func DefaultPreferences(userID string, now time.Time) *UserPreferences {
	return &UserPreferences{
		UserID:               userID,
		SessionMinutes:       25,
		BreakMinutes:         5,
		WeeklyGoalMinutes:    600,
		Theme:                "default",
		NotificationsEnabled: true,
		UpdatedAt:            now,
	}
}

// SessionStatus is the closed set of Pomodoro session states.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusStopped   SessionStatus = "stopped"
)

// transitions is the authoritative state machine. Terminal states have no
// outgoing edges.
var transitions = map[SessionStatus][]SessionStatus{
	StatusScheduled: {StatusActive, StatusStopped},
	StatusActive:    {StatusPaused, StatusCompleted, StatusStopped},
	StatusPaused:    {StatusActive, StatusStopped},
	StatusCompleted: {},
	StatusStopped:   {},
}

func (s SessionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

func (s SessionStatus) CanTransitionTo(to SessionStatus) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

type PomodoroSession struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Title           string        `json:"title"`
	Goal            string        `json:"goal,omitempty"`
	Tags            string        `json:"tags,omitempty"` // comma-separated
	Location        string        `json:"location,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Status          SessionStatus `json:"status"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty"`
	PausedAt        *time.Time    `json:"paused_at,omitempty"`
	AutoCompleted   bool          `json:"auto_completed,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TagList splits the comma-separated Tags field, trimming whitespace and
// dropping empties.
func (s *PomodoroSession) TagList() []string {
	if s.Tags == "" {
		return nil
	}
	parts := strings.Split(s.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// DayKey is the local calendar day the session started on (YYYY-MM-DD).
func (s *PomodoroSession) DayKey() string {
	return s.StartTime.Format("2006-01-02")
}

// StatsBucket accumulates per-group session aggregates.
type StatsBucket struct {
	Count     int `json:"count"`
	Minutes   int `json:"minutes"`
	Completed int `json:"completed"`
}

// UserStats is a derived cache over a user's session history. It carries no
// information that cannot be recomputed from the sessions themselves, with
// the single exception of LongestStreak, which is maxed against its prior
// value so it never decreases.
type UserStats struct {
	UserID               string                 `json:"user_id"`
	TotalSessions        int                    `json:"total_sessions"`
	CompletedSessions    int                    `json:"completed_sessions"`
	TotalMinutes         int                    `json:"total_minutes"`
	CompletedMinutes     int                    `json:"completed_minutes"`
	CompletionRate       int                    `json:"completion_rate"`        // percent, 0-100
	AverageSessionLength int                    `json:"average_session_length"` // minutes
	StreakDays           int                    `json:"streak_days"`
	LongestStreak        int                    `json:"longest_streak"`
	LastSessionDate      string                 `json:"last_session_date,omitempty"` // YYYY-MM-DD
	ByDay                map[string]StatsBucket `json:"by_day,omitempty"`
	ByMonth              map[string]StatsBucket `json:"by_month,omitempty"`
	ByTag                map[string]StatsBucket `json:"by_tag,omitempty"`
	ByLocation           map[string]StatsBucket `json:"by_location,omitempty"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

type Meeting struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Location  string    `json:"location,omitempty"`
	StartTime time.Time `json:"start_time"`
	Attendees []string  `json:"attendees,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuthSession struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *AuthSession) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
