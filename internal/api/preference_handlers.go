package api

import (
	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal/service"
)

func GetPreferences(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		p, err := service.GetPreferences(c.Request.Context(), app.Store(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to fetch preferences")
			return
		}
		HandleSuccess(c, app.Logger(), p, nil)
	}
}

func PutPreferences(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var req service.PreferencesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}
		if err := service.ValidatePreferencesRequest(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Preferences validation failed")
			return
		}

		p, err := service.UpdatePreferences(c.Request.Context(), app.Store(), user, &req)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to save preferences")
			return
		}
		HandleSuccess(c, app.Logger(), p, nil)
	}
}
