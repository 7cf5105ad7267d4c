package api

import (
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/realtime"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
	"github.com/yourname/focustracker/internal/syncer"
)

type App interface {
	Logger() internal.Logger
	Store() storage.Store
	Sessions() *service.SessionService
	Coordinator() *syncer.Coordinator
	Hub() *realtime.Hub
	Presence() *realtime.PresenceTracker
	// Auth is nil when the server runs with the static-token provider.
	Auth() *auth.Service
}
