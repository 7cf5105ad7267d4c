package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourname/focustracker/internal/auth"
)

// NewRouter wires every route. provider guards everything except health,
// metrics, and the auth endpoints themselves.
func NewRouter(app App, provider auth.Provider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "pending_ops": app.Coordinator().PendingOps()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/auth/register", Register(app))
	r.POST("/auth/login", Login(app))

	authed := r.Group("/", auth.Middleware(provider))
	authed.POST("/auth/logout", Logout(app))

	authed.GET("/sessions", ListSessions(app))
	authed.POST("/sessions/start", StartSession(app))
	authed.GET("/sessions/active", GetActiveSession(app))
	authed.POST("/sessions/:id/pause", PauseSession(app))
	authed.POST("/sessions/:id/resume", ResumeSession(app))
	authed.POST("/sessions/:id/complete", CompleteSession(app))
	authed.POST("/sessions/:id/stop", StopSession(app))

	authed.GET("/stats", GetStats(app))
	authed.GET("/presence", GetPresence(app))

	authed.GET("/preferences", GetPreferences(app))
	authed.PUT("/preferences", PutPreferences(app))

	authed.GET("/meetings", ListMeetings(app))
	authed.POST("/meetings", PostMeeting(app))
	authed.PUT("/meetings/:id", PutMeeting(app))
	authed.DELETE("/meetings/:id", DeleteMeeting(app))

	authed.GET("/ws", ChangeFeed(app))

	return r
}
