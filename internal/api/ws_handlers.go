package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourname/focustracker/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type wsClientMessage struct {
	Action string `json:"action"` // heartbeat
}

// ChangeFeed upgrades to a websocket and streams the user's change events.
// The connection doubles as the presence signal: connect marks the user
// online, heartbeats keep them online, disconnect marks them gone.
func ChangeFeed(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			app.Logger().Errorf("failed to upgrade websocket: %v", err)
			return
		}
		defer ws.Close()

		var tables []string
		for _, t := range strings.Split(c.Query("tables"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				tables = append(tables, t)
			}
		}
		ch, cancel := app.Hub().Subscribe(64, tables...)
		defer cancel()

		app.Presence().Touch(user.ID)
		metrics.OnlineUsers.Inc()
		defer func() {
			app.Presence().Leave(user.ID)
			metrics.OnlineUsers.Dec()
		}()
		app.Logger().Infof("realtime client connected: user=%s tables=%v", user.ID, tables)

		if err := ws.WriteJSON(gin.H{"action": "subscribed", "tables": tables}); err != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var msg wsClientMessage
				if err := ws.ReadJSON(&msg); err != nil {
					app.Logger().Infof("realtime client disconnected: user=%s", user.ID)
					return
				}
				if msg.Action == "heartbeat" {
					app.Presence().Touch(user.ID)
				}
			}
		}()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				// Each connection only sees its own user's rows.
				if ev.UserID != "" && ev.UserID != user.ID {
					continue
				}
				if err := ws.WriteJSON(ev); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
