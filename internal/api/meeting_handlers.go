package api

import (
	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal/service"
)

func PostMeeting(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var req service.MeetingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		if err := service.ValidateMeetingRequest(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Meeting validation failed")
			return
		}

		m, err := service.CreateMeeting(c.Request.Context(), app.Store(), user, &req)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to save meeting")
			return
		}
		HandleSuccess(c, app.Logger(), m, nil)
	}
}

func PutMeeting(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var req service.MeetingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		if err := service.ValidateMeetingRequest(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Meeting validation failed")
			return
		}

		m, err := service.UpdateMeeting(c.Request.Context(), app.Store(), user, c.Param("id"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Failed to update meeting")
			return
		}
		HandleSuccess(c, app.Logger(), m, nil)
	}
}

func ListMeetings(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		meetings, err := app.Store().ListMeetings(c.Request.Context(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to fetch meetings")
			return
		}
		HandleSuccess(c, app.Logger(), meetings, nil)
	}
}

func DeleteMeeting(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		deleted, err := app.Store().DeleteMeeting(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to delete meeting")
			return
		}
		HandleSuccess(c, app.Logger(), nil, map[string]any{"deleted": deleted})
	}
}
