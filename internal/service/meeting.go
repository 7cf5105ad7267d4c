package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

type MeetingRequest struct {
	Title     string    `json:"title" validate:"required"`
	Location  string    `json:"location,omitempty"`
	StartTime time.Time `json:"start_time" validate:"required"`
	Attendees []string  `json:"attendees,omitempty" validate:"dive,required"`
}

func ValidateMeetingRequest(req *MeetingRequest) error {
	return validate.Struct(req)
}

func CreateMeeting(ctx context.Context, repo storage.MeetingRepository, user *internal.User, req *MeetingRequest) (*internal.Meeting, error) {
	now := time.Now()
	m := &internal.Meeting{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Title:     req.Title,
		Location:  req.Location,
		StartTime: req.StartTime,
		Attendees: req.Attendees,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.SaveMeeting(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func UpdateMeeting(ctx context.Context, repo storage.MeetingRepository, user *internal.User, id string, req *MeetingRequest) (*internal.Meeting, error) {
	m, err := repo.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.UserID != user.ID {
		return nil, internal.ErrNotFound
	}
	m.Title = req.Title
	m.Location = req.Location
	m.StartTime = req.StartTime
	m.Attendees = req.Attendees
	m.UpdatedAt = time.Now()
	if err := repo.SaveMeeting(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
