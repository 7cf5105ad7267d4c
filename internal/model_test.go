package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusTransitions(t *testing.T) {
	assert.True(t, StatusScheduled.CanTransitionTo(StatusActive))
	assert.True(t, StatusActive.CanTransitionTo(StatusPaused))
	assert.True(t, StatusActive.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusPaused.CanTransitionTo(StatusActive))
	assert.True(t, StatusPaused.CanTransitionTo(StatusStopped))

	assert.False(t, StatusScheduled.CanTransitionTo(StatusPaused))
	assert.False(t, StatusPaused.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusActive))
	assert.False(t, StatusStopped.CanTransitionTo(StatusActive))

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusStopped.Terminal())
	assert.False(t, StatusActive.Terminal())

	assert.True(t, StatusActive.Valid())
	assert.False(t, SessionStatus("napping").Valid())
}

func TestTagList(t *testing.T) {
	s := &PomodoroSession{Tags: "deep-work, writing , ,focus"}
	assert.Equal(t, []string{"deep-work", "writing", "focus"}, s.TagList())

	assert.Nil(t, (&PomodoroSession{}).TagList())
}

func TestSessionJSONRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	completed := start.Add(25 * time.Minute)
	in := PomodoroSession{
		ID:              "s1",
		UserID:          "u1",
		Title:           "focus",
		Tags:            "writing",
		DurationMinutes: 25,
		StartTime:       start,
		EndTime:         completed,
		Status:          StatusCompleted,
		CompletedAt:     &completed,
		AutoCompleted:   true,
		CreatedAt:       start,
		UpdatedAt:       completed,
	}

	raw, err := json.Marshal(in)
	assert.NoError(t, err)
	var out PomodoroSession
	assert.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)

	// Absent nullable timestamps stay nil.
	var sparse PomodoroSession
	assert.NoError(t, json.Unmarshal([]byte(`{"id":"s2","status":"active"}`), &sparse))
	assert.Nil(t, sparse.CompletedAt)
	assert.Nil(t, sparse.StoppedAt)
	assert.Nil(t, sparse.PausedAt)
	assert.False(t, sparse.AutoCompleted)
}

func TestDayKey(t *testing.T) {
	s := &PomodoroSession{StartTime: time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)}
	assert.Equal(t, "2024-03-10", s.DayKey())
}

func TestDefaultPreferences(t *testing.T) {
	now := time.Now()
	p := DefaultPreferences("u1", now)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, 25, p.SessionMinutes)
	assert.Equal(t, 5, p.BreakMinutes)
	assert.Equal(t, 600, p.WeeklyGoalMinutes)
	assert.Equal(t, "default", p.Theme)
	assert.True(t, p.NotificationsEnabled)
}

func TestAuthSessionExpired(t *testing.T) {
	now := time.Now()
	a := &AuthSession{Token: "t", ExpiresAt: now.Add(time.Hour)}
	assert.False(t, a.Expired(now))
	assert.True(t, a.Expired(now.Add(2*time.Hour)))
}
