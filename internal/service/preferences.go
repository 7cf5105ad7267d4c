package service

import (
	"context"
	"time"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

type PreferencesRequest struct {
	SessionMinutes       int    `json:"session_minutes" validate:"required,gte=1,lte=240"`
	BreakMinutes         int    `json:"break_minutes" validate:"required,gte=1,lte=60"`
	WeeklyGoalMinutes    int    `json:"weekly_goal_minutes" validate:"gte=0"`
	Theme                string `json:"theme" validate:"required"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
}

func ValidatePreferencesRequest(req *PreferencesRequest) error {
	return validate.Struct(req)
}

// GetPreferences falls back to defaults for users created before the
// preferences row existed.
func GetPreferences(ctx context.Context, repo storage.PreferenceRepository, userID string) (*internal.UserPreferences, error) {
	p, err := repo.GetPreferences(ctx, userID)
	if err == internal.ErrNotFound {
		return internal.DefaultPreferences(userID, time.Now()), nil
	}
	return p, err
}

func UpdatePreferences(ctx context.Context, repo storage.PreferenceRepository, user *internal.User, req *PreferencesRequest) (*internal.UserPreferences, error) {
	p := &internal.UserPreferences{
		UserID:               user.ID,
		SessionMinutes:       req.SessionMinutes,
		BreakMinutes:         req.BreakMinutes,
		WeeklyGoalMinutes:    req.WeeklyGoalMinutes,
		Theme:                req.Theme,
		NotificationsEnabled: req.NotificationsEnabled,
		UpdatedAt:            time.Now(),
	}
	if err := repo.SavePreferences(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
