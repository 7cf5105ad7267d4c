package api

import (
	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal/service"
)

func StartSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var req service.StartSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		sess, err := app.Sessions().Start(c.Request.Context(), user.ID, &req)
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Failed to start session")
			return
		}
		HandleSuccess(c, app.Logger(), sess, nil)
	}
}

func PauseSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		sess, err := app.Sessions().Pause(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Failed to pause session")
			return
		}
		HandleSuccess(c, app.Logger(), sess, nil)
	}
}

func ResumeSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		sess, err := app.Sessions().Resume(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Failed to resume session")
			return
		}
		HandleSuccess(c, app.Logger(), sess, nil)
	}
}

func CompleteSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		sess, won, err := app.Sessions().Complete(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Failed to complete session")
			return
		}
		if !won {
			// Already finished elsewhere; not an error, the client should
			// refresh.
			HandleSuccess(c, app.Logger(), nil, map[string]any{"applied": false})
			return
		}
		HandleSuccess(c, app.Logger(), sess, map[string]any{"applied": true})
	}
}

func StopSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		sess, won, err := app.Sessions().Stop(c.Request.Context(), user.ID, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Failed to stop session")
			return
		}
		if !won {
			HandleSuccess(c, app.Logger(), nil, map[string]any{"applied": false})
			return
		}
		HandleSuccess(c, app.Logger(), sess, map[string]any{"applied": true})
	}
}

// GetActiveSession returns null data when the user has no session in
// flight, including right after an expired session is auto-completed.
func GetActiveSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		sess, err := app.Sessions().GetActive(c.Request.Context(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, statusFor(err), "Failed to fetch active session")
			return
		}
		if sess == nil {
			HandleSuccess(c, app.Logger(), nil, nil)
			return
		}
		if sess.Status.Terminal() {
			meta := map[string]any{"auto_completed": sess.AutoCompleted, "last_session": sess}
			HandleSuccess(c, app.Logger(), nil, meta)
			return
		}
		HandleSuccess(c, app.Logger(), sess, nil)
	}
}

func ListSessions(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		sessions, err := app.Sessions().List(c.Request.Context(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to fetch sessions")
			return
		}
		HandleSuccess(c, app.Logger(), sessions, nil)
	}
}
