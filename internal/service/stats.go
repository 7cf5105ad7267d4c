package service

import (
	"math"
	"sort"
	"time"

	"github.com/yourname/focustracker/internal"
)

// The stats engine is the single place streak and aggregate math lives.
// Everything here is pure: same sessions in, bit-identical stats out, with
// "today" passed explicitly so tests control the clock.
//
// Streak semantics: a day counts toward the streak if any session started on
// it, completed or not. Product has been flagged that stopped sessions
// extend streaks; until that changes this is the intended behavior.

// StatsResult carries the recomputed stats plus how many malformed sessions
// were skipped instead of failing the whole recompute.
type StatsResult struct {
	Stats   internal.UserStats
	Skipped int
}

// RecomputeStats derives UserStats from the full session history. prior is
// consulted only to keep LongestStreak monotone; pass nil for a fresh user.
func RecomputeStats(sessions []internal.PomodoroSession, prior *internal.UserStats, today time.Time) StatsResult {
	var res StatsResult
	st := internal.UserStats{
		ByDay:      map[string]internal.StatsBucket{},
		ByMonth:    map[string]internal.StatsBucket{},
		ByTag:      map[string]internal.StatsBucket{},
		ByLocation: map[string]internal.StatsBucket{},
	}
	todayKey := today.Format("2006-01-02")

	for i := range sessions {
		s := &sessions[i]
		if s.DurationMinutes < 1 {
			res.Skipped++
			continue
		}
		if s.UserID != "" {
			st.UserID = s.UserID
		}
		completed := s.Status == internal.StatusCompleted

		st.TotalSessions++
		st.TotalMinutes += s.DurationMinutes
		if completed {
			st.CompletedSessions++
			st.CompletedMinutes += s.DurationMinutes
		}

		day := s.DayKey()
		if day > todayKey {
			// Future-dated scheduled sessions count in totals but not in the
			// calendar aggregates or the streak.
			continue
		}
		bump(st.ByDay, day, s.DurationMinutes, completed)
		bump(st.ByMonth, s.StartTime.Format("2006-01"), s.DurationMinutes, completed)
		for _, tag := range s.TagList() {
			bump(st.ByTag, tag, s.DurationMinutes, completed)
		}
		if s.Location != "" {
			bump(st.ByLocation, s.Location, s.DurationMinutes, completed)
		}
	}

	st.CompletionRate = completionRate(st.CompletedSessions, st.TotalSessions)
	st.AverageSessionLength = averageLength(st.CompletedMinutes, st.CompletedSessions)
	st.StreakDays, st.LastSessionDate = streak(st.ByDay)
	st.LongestStreak = st.StreakDays
	if prior != nil && prior.LongestStreak > st.LongestStreak {
		st.LongestStreak = prior.LongestStreak
	}
	res.Stats = st
	return res
}

func bump(m map[string]internal.StatsBucket, key string, minutes int, completed bool) {
	b := m[key]
	b.Count++
	b.Minutes += minutes
	if completed {
		b.Completed++
	}
	m[key] = b
}

// completionRate is completed/total as a whole percentage, round half up.
func completionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(completed)/float64(total)*100 + 0.5))
}

func averageLength(completedMinutes, completedSessions int) int {
	if completedSessions == 0 {
		return 0
	}
	return int(math.Floor(float64(completedMinutes)/float64(completedSessions) + 0.5))
}

// streak returns the run of consecutive calendar days ending at the most
// recent session day, and that day. Multiple sessions on one day still
// count once.
func streak(byDay map[string]internal.StatsBucket) (int, string) {
	if len(byDay) == 0 {
		return 0, ""
	}
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	run := 1
	prev, err := time.Parse("2006-01-02", days[0])
	if err != nil {
		return 0, ""
	}
	for _, d := range days[1:] {
		cur, err := time.Parse("2006-01-02", d)
		if err != nil {
			break
		}
		if prev.Sub(cur) != 24*time.Hour {
			break
		}
		run++
		prev = cur
	}
	return run, days[0]
}

// PeriodStats is the windowed view served by the stats endpoint.
type PeriodStats struct {
	Period           string                          `json:"period"`
	Start            time.Time                       `json:"start"`
	End              time.Time                       `json:"end"`
	Sessions         int                             `json:"sessions"`
	Completed        int                             `json:"completed"`
	Minutes          int                             `json:"minutes"`
	CompletedMinutes int                             `json:"completed_minutes"`
	ByDay            map[string]internal.StatsBucket `json:"by_day,omitempty"`
}

// ComputePeriodStats aggregates the sessions whose start falls in
// [start, end).
func ComputePeriodStats(sessions []internal.PomodoroSession, period string, start, end time.Time) PeriodStats {
	ps := PeriodStats{
		Period: period,
		Start:  start,
		End:    end,
		ByDay:  map[string]internal.StatsBucket{},
	}
	for i := range sessions {
		s := &sessions[i]
		if s.DurationMinutes < 1 || s.StartTime.Before(start) || !s.StartTime.Before(end) {
			continue
		}
		completed := s.Status == internal.StatusCompleted
		ps.Sessions++
		ps.Minutes += s.DurationMinutes
		if completed {
			ps.Completed++
			ps.CompletedMinutes += s.DurationMinutes
		}
		bump(ps.ByDay, s.DayKey(), s.DurationMinutes, completed)
	}
	return ps
}

// PeriodBounds resolves a named period to a window ending after now.
// Unknown names fall back to day.
func PeriodBounds(period string, now time.Time) (time.Time, time.Time) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case "week":
		// Week starts Monday.
		offset := (int(dayStart.Weekday()) + 6) % 7
		start := dayStart.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case "month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	case "year":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(1, 0, 0)
	default:
		return dayStart, dayStart.AddDate(0, 0, 1)
	}
}

// GoalProgress reports completed focus minutes against the weekly goal.
type GoalProgress struct {
	WeeklyGoalMinutes int `json:"weekly_goal_minutes"`
	CompletedMinutes  int `json:"completed_minutes"`
	Percent           int `json:"percent"`
}

func ComputeGoalProgress(prefs *internal.UserPreferences, sessions []internal.PomodoroSession, now time.Time) GoalProgress {
	start, end := PeriodBounds("week", now)
	week := ComputePeriodStats(sessions, "week", start, end)
	gp := GoalProgress{CompletedMinutes: week.CompletedMinutes}
	if prefs != nil {
		gp.WeeklyGoalMinutes = prefs.WeeklyGoalMinutes
	}
	if gp.WeeklyGoalMinutes > 0 {
		gp.Percent = int(math.Floor(float64(gp.CompletedMinutes)/float64(gp.WeeklyGoalMinutes)*100 + 0.5))
		if gp.Percent > 100 {
			gp.Percent = 100
		}
	}
	return gp
}
