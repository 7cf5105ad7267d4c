package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/service"
)

// GetStats serves the overall cached stats plus a windowed period view and
// weekly goal progress. An explicit start/end pair overrides the named
// period window.
func GetStats(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		ctx := c.Request.Context()

		overall, err := app.Store().GetStats(ctx, user.ID)
		if errors.Is(err, internal.ErrNotFound) {
			overall, err = app.Sessions().Recompute(ctx, user.ID)
		}
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to fetch stats")
			return
		}

		sessions, err := app.Sessions().List(ctx, user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to fetch sessions for stats")
			return
		}

		now := time.Now()
		period := c.DefaultQuery("period", "day")
		start, end := service.PeriodBounds(period, now)
		if s, errS := time.Parse(time.RFC3339, c.Query("start")); errS == nil {
			if e, errE := time.Parse(time.RFC3339, c.Query("end")); errE == nil {
				start, end = s, e
			}
		}

		prefs, err := service.GetPreferences(ctx, app.Store(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to fetch preferences for stats")
			return
		}

		HandleSuccess(c, app.Logger(), gin.H{
			"overall": overall,
			"period":  service.ComputePeriodStats(sessions, period, start, end),
			"goals":   service.ComputeGoalProgress(prefs, sessions, now),
		}, nil)
	}
}

func GetPresence(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		HandleSuccess(c, app.Logger(), gin.H{"online": app.Presence().Online()}, nil)
	}
}
