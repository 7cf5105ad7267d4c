package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/realtime"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
	"github.com/yourname/focustracker/internal/syncer"
)

const testToken = "MOCK-TOKEN"

type testApp struct {
	logger   internal.Logger
	store    storage.Store
	sessions *service.SessionService
	coord    *syncer.Coordinator
	hub      *realtime.Hub
	presence *realtime.PresenceTracker
	authSvc  *auth.Service
}

func (a *testApp) Logger() internal.Logger             { return a.logger }
func (a *testApp) Store() storage.Store                { return a.store }
func (a *testApp) Sessions() *service.SessionService   { return a.sessions }
func (a *testApp) Coordinator() *syncer.Coordinator    { return a.coord }
func (a *testApp) Hub() *realtime.Hub                  { return a.hub }
func (a *testApp) Presence() *realtime.PresenceTracker { return a.presence }
func (a *testApp) Auth() *auth.Service                 { return a.authSvc }

func newTestServer(t *testing.T, jwtMode bool) (*gin.Engine, *testApp) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := internal.NopLogger{}

	store, err := storage.NewFileStore(t.TempDir(), logger)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue, err := syncer.NewQueue(filepath.Join(t.TempDir(), "ops.json"), 3, logger)
	assert.NoError(t, err)
	hub := realtime.NewHub(logger)
	coord := syncer.New(store, store, hub, queue, logger, syncer.Options{Timeout: time.Second})

	a := &testApp{
		logger:   logger,
		store:    store,
		sessions: service.NewSessionService(store, store, coord, logger),
		coord:    coord,
		hub:      hub,
		presence: realtime.NewPresenceTracker(time.Minute),
	}
	var provider auth.Provider = auth.NewLocalProvider(testToken, logger)
	if jwtMode {
		a.authSvc = auth.NewService("test-secret", time.Hour, store, store, store, store, logger)
		provider = a.authSvc
	}
	return NewRouter(a, provider), a
}

func doRequest(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealthz(t *testing.T) {
	r, _ := newTestServer(t, false)
	w, resp := doRequest(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestAuthRequired(t *testing.T) {
	r, _ := newTestServer(t, false)

	w, resp := doRequest(t, r, http.MethodGet, "/sessions", "", nil)
	assert.Equal(t, 401, w.Code)
	assert.NotNil(t, resp["error"])

	w, _ = doRequest(t, r, http.MethodGet, "/sessions", "wrong-token", nil)
	assert.Equal(t, 401, w.Code)
}

func TestStartSessionEndpoint(t *testing.T) {
	r, _ := newTestServer(t, false)

	w, resp := doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{
		"title": "write report", "duration_minutes": 25, "tags": "writing",
	})
	assert.Equal(t, 200, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, float64(25), data["duration_minutes"])
}

func TestStartSessionValidationErrors(t *testing.T) {
	r, _ := newTestServer(t, false)

	w, resp := doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{
		"title": "x", "duration_minutes": 0,
	})
	assert.Equal(t, 400, w.Code)
	assert.NotNil(t, resp["error"])

	w, _ = doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{
		"duration_minutes": 25,
	})
	assert.Equal(t, 400, w.Code)
}

func TestActiveSessionEndpoint(t *testing.T) {
	r, _ := newTestServer(t, false)

	w, resp := doRequest(t, r, http.MethodGet, "/sessions/active", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Nil(t, resp["data"])

	_, started := doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{
		"title": "focus", "duration_minutes": 25,
	})
	id := started["data"].(map[string]interface{})["id"].(string)

	w, resp = doRequest(t, r, http.MethodGet, "/sessions/active", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, id, resp["data"].(map[string]interface{})["id"])
}

func TestCompleteSessionEndpoint(t *testing.T) {
	r, _ := newTestServer(t, false)

	_, started := doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{
		"title": "focus", "duration_minutes": 25,
	})
	id := started["data"].(map[string]interface{})["id"].(string)

	w, resp := doRequest(t, r, http.MethodPost, "/sessions/"+id+"/complete", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, true, resp["meta"].(map[string]interface{})["applied"])
	assert.Equal(t, "completed", resp["data"].(map[string]interface{})["status"])

	// A repeat from another device is not an error.
	w, resp = doRequest(t, r, http.MethodPost, "/sessions/"+id+"/complete", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, false, resp["meta"].(map[string]interface{})["applied"])

	w, resp = doRequest(t, r, http.MethodGet, "/sessions/active", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Nil(t, resp["data"])
}

func TestPauseResumeEndpoints(t *testing.T) {
	r, _ := newTestServer(t, false)

	_, started := doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{
		"title": "focus", "duration_minutes": 25,
	})
	id := started["data"].(map[string]interface{})["id"].(string)

	// Resume before pause is a transition conflict.
	w, _ := doRequest(t, r, http.MethodPost, "/sessions/"+id+"/resume", testToken, nil)
	assert.Equal(t, 409, w.Code)

	w, resp := doRequest(t, r, http.MethodPost, "/sessions/"+id+"/pause", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "paused", resp["data"].(map[string]interface{})["status"])

	w, resp = doRequest(t, r, http.MethodPost, "/sessions/"+id+"/resume", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "active", resp["data"].(map[string]interface{})["status"])
}

func TestListSessionsEndpoint(t *testing.T) {
	r, _ := newTestServer(t, false)

	doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{"title": "a", "duration_minutes": 25})
	doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{"title": "b", "duration_minutes": 25})

	w, resp := doRequest(t, r, http.MethodGet, "/sessions", testToken, nil)
	assert.Equal(t, 200, w.Code)
	list := resp["data"].([]interface{})
	assert.Len(t, list, 2)
}

func TestStatsEndpoint(t *testing.T) {
	r, _ := newTestServer(t, false)

	_, started := doRequest(t, r, http.MethodPost, "/sessions/start", testToken, gin.H{
		"title": "focus", "duration_minutes": 25,
	})
	id := started["data"].(map[string]interface{})["id"].(string)
	doRequest(t, r, http.MethodPost, "/sessions/"+id+"/complete", testToken, nil)

	w, resp := doRequest(t, r, http.MethodGet, "/stats?period=week", testToken, nil)
	assert.Equal(t, 200, w.Code)
	data := resp["data"].(map[string]interface{})
	overall := data["overall"].(map[string]interface{})
	assert.Equal(t, float64(1), overall["total_sessions"])
	assert.Equal(t, float64(1), overall["completed_sessions"])
	assert.Equal(t, float64(100), overall["completion_rate"])
	assert.Contains(t, data, "period")
	assert.Contains(t, data, "goals")
}

func TestPreferencesEndpoints(t *testing.T) {
	r, _ := newTestServer(t, false)

	w, resp := doRequest(t, r, http.MethodGet, "/preferences", testToken, nil)
	assert.Equal(t, 200, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(25), data["session_minutes"])

	w, resp = doRequest(t, r, http.MethodPut, "/preferences", testToken, gin.H{
		"session_minutes": 50, "break_minutes": 10, "weekly_goal_minutes": 300,
		"theme": "dark", "notifications_enabled": false,
	})
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, float64(50), resp["data"].(map[string]interface{})["session_minutes"])

	w, resp = doRequest(t, r, http.MethodGet, "/preferences", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, float64(50), resp["data"].(map[string]interface{})["session_minutes"])

	w, _ = doRequest(t, r, http.MethodPut, "/preferences", testToken, gin.H{
		"session_minutes": 0, "break_minutes": 10, "theme": "dark",
	})
	assert.Equal(t, 400, w.Code)
}

func TestMeetingEndpoints(t *testing.T) {
	r, _ := newTestServer(t, false)

	w, resp := doRequest(t, r, http.MethodPost, "/meetings", testToken, gin.H{
		"title": "standup", "start_time": time.Now().Add(time.Hour).Format(time.RFC3339),
		"attendees": []string{"alice", "bob"},
	})
	assert.Equal(t, 200, w.Code)
	id := resp["data"].(map[string]interface{})["id"].(string)

	w, resp = doRequest(t, r, http.MethodPut, "/meetings/"+id, testToken, gin.H{
		"title": "retro", "start_time": time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "retro", resp["data"].(map[string]interface{})["title"])

	w, resp = doRequest(t, r, http.MethodGet, "/meetings", testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Len(t, resp["data"].([]interface{}), 1)

	w, resp = doRequest(t, r, http.MethodDelete, "/meetings/"+id, testToken, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, true, resp["meta"].(map[string]interface{})["deleted"])

	w, _ = doRequest(t, r, http.MethodPut, "/meetings/"+id, testToken, gin.H{
		"title": "gone", "start_time": time.Now().Format(time.RFC3339),
	})
	assert.Equal(t, 404, w.Code)
}

func TestAuthEndpointsDisabledInLocalMode(t *testing.T) {
	r, _ := newTestServer(t, false)

	w, _ := doRequest(t, r, http.MethodPost, "/auth/register", "", gin.H{
		"username": "demo", "display_name": "Demo", "password": "hunter2hunter2",
	})
	assert.Equal(t, 501, w.Code)

	w, _ = doRequest(t, r, http.MethodPost, "/auth/login", "", gin.H{
		"username": "demo", "password": "hunter2hunter2",
	})
	assert.Equal(t, 501, w.Code)
}

func TestJWTRegisterLoginLogoutFlow(t *testing.T) {
	r, _ := newTestServer(t, true)

	w, _ := doRequest(t, r, http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "display_name": "Alice", "password": "hunter2hunter2",
	})
	assert.Equal(t, 200, w.Code)

	// Duplicate username is a conflict.
	w, _ = doRequest(t, r, http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "display_name": "Alice Again", "password": "hunter2hunter2",
	})
	assert.Equal(t, 409, w.Code)

	// Wrong password is rejected.
	w, _ = doRequest(t, r, http.MethodPost, "/auth/login", "", gin.H{
		"username": "alice", "password": "wrong-password",
	})
	assert.Equal(t, 401, w.Code)

	w, resp := doRequest(t, r, http.MethodPost, "/auth/login", "", gin.H{
		"username": "alice", "password": "hunter2hunter2",
	})
	assert.Equal(t, 200, w.Code)
	token := resp["data"].(map[string]interface{})["token"].(string)
	assert.NotEmpty(t, token)

	// Fresh accounts come with default preferences.
	w, resp = doRequest(t, r, http.MethodGet, "/preferences", token, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, float64(25), resp["data"].(map[string]interface{})["session_minutes"])

	w, _ = doRequest(t, r, http.MethodPost, "/auth/logout", token, nil)
	assert.Equal(t, 200, w.Code)

	// Revoked tokens no longer authenticate.
	w, _ = doRequest(t, r, http.MethodGet, "/sessions", token, nil)
	assert.Equal(t, 401, w.Code)
}

func TestPresenceEndpoint(t *testing.T) {
	r, a := newTestServer(t, false)

	a.Presence().Touch("u1")
	w, resp := doRequest(t, r, http.MethodGet, "/presence", testToken, nil)
	assert.Equal(t, 200, w.Code)
	online := resp["data"].(map[string]interface{})["online"].([]interface{})
	assert.Equal(t, []interface{}{"u1"}, online)
}
