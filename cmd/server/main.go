package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/api"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/config"
	"github.com/yourname/focustracker/internal/realtime"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
	"github.com/yourname/focustracker/internal/syncer"
)

type app struct {
	logger   internal.Logger
	store    storage.Store
	sessions *service.SessionService
	coord    *syncer.Coordinator
	hub      *realtime.Hub
	presence *realtime.PresenceTracker
	authSvc  *auth.Service
}

func (a *app) Logger() internal.Logger             { return a.logger }
func (a *app) Store() storage.Store                { return a.store }
func (a *app) Sessions() *service.SessionService   { return a.sessions }
func (a *app) Coordinator() *syncer.Coordinator    { return a.coord }
func (a *app) Hub() *realtime.Hub                  { return a.hub }
func (a *app) Presence() *realtime.PresenceTracker { return a.presence }
func (a *app) Auth() *auth.Service                 { return a.authSvc }

func main() {
	cfg := config.Load()

	logger, err := internal.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	store, err := storage.NewStore(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init storage: %v", err)
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("failed to create data dir: %v", err)
	}
	queue, err := syncer.NewQueue(filepath.Join(cfg.DataDir, "pending_ops.json"), cfg.OpMaxRetries, logger)
	if err != nil {
		logger.Fatalf("failed to init op queue: %v", err)
	}

	hub := realtime.NewHub(logger)
	presence := realtime.NewPresenceTracker(cfg.PresenceTTL)
	coord := syncer.New(store, store, hub, queue, logger, syncer.Options{
		Timeout:       cfg.NetworkTimeout,
		FlushInterval: cfg.FlushInterval,
	})
	sessions := service.NewSessionService(store, store, coord, logger)

	var provider auth.Provider
	var authSvc *auth.Service
	if cfg.AuthMode == "jwt" {
		authSvc = auth.NewService(cfg.JWTSecret, cfg.TokenTTL, store, store, store, store, logger)
		provider = authSvc
	} else {
		provider = auth.NewLocalProvider(cfg.AuthToken, logger)
	}

	a := &app{
		logger:   logger,
		store:    store,
		sessions: sessions,
		coord:    coord,
		hub:      hub,
		presence: presence,
		authSvc:  authSvc,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go coord.Run(ctx)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewRouter(a, provider)}
	go func() {
		logger.Infof("Server running on %s (env=%s storage=%s auth=%s)",
			cfg.HTTPAddr, cfg.Env, cfg.DBType, cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	// Best-effort drain of queued writes before exit.
	coord.Flush(shutdownCtx)
}
