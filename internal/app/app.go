package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"finpal/internal/agent"
	"finpal/internal/orchestrator"
	"finpal/internal/server"
	"finpal/internal/store"
	"finpal/pkg/logging"
)

const appSubsystem = "App"

// Application is a running finpal server.
type Application struct {
	settings Settings

	hub     *Hub
	store   *store.Store
	agent   *agent.Agent
	server  *server.Server
	watcher *ConfigWatcher

	readyOnce sync.Once
	ready     chan struct{}
	closeOnce sync.Once
}

// New loads the provider file and opens the store. Nothing is started until
// Run. A missing or malformed provider file is returned as is.
func New(settings Settings) (*Application, error) {
	if settings.ReloadDebounce <= 0 {
		settings.ReloadDebounce = DefaultReloadDebounce
	}

	hub := NewHub(settings.ConfigPath, orchestrator.Options{ClientVersion: settings.Version})
	if err := hub.Load(); err != nil {
		return nil, err
	}

	db, err := store.Open(settings.DBPath)
	if err != nil {
		hub.Shutdown()
		return nil, err
	}

	a := &Application{
		settings: settings,
		hub:      hub,
		store:    db,
		ready:    make(chan struct{}),
	}

	var chat server.Chatter
	if settings.APIKey != "" {
		normalizer, err := agent.NormalizerByName(settings.Normalizer)
		if err != nil {
			a.close()
			return nil, err
		}
		a.agent = agent.New(agent.NewClient(settings.APIKey, settings.BaseURL), hub, db, agent.Config{
			Model:      settings.Model,
			Normalizer: normalizer,
		})
		chat = a.agent
	} else {
		logging.Warn(appSubsystem, "No LLM API key set (%s or %s); chat is disabled", EnvAPIKey, EnvGeminiKey)
	}

	a.server = server.New(server.Config{Addr: settings.Addr}, hub, chat, db)
	return a, nil
}

// Hub returns the provider hub.
func (a *Application) Hub() *Hub { return a.hub }

// Ready is closed once the HTTP server is listening.
func (a *Application) Ready() <-chan struct{} { return a.ready }

// Addr returns the listening address once Ready is closed.
func (a *Application) Addr() string { return a.server.Addr() }

// Run starts providers and the HTTP server and blocks until ctx ends, then
// shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if !a.settings.LazyConnect {
		list, err := a.hub.Start(ctx)
		if err != nil {
			return fmt.Errorf("start providers: %w", err)
		}
		logging.Info(appSubsystem, "Providers started with %d tools", len(list))
	}

	if err := a.server.Start(); err != nil {
		return err
	}
	a.readyOnce.Do(func() { close(a.ready) })
	notify(daemon.SdNotifyReady)

	if a.settings.Watch {
		a.watcher = NewConfigWatcher(a.settings.ConfigPath, a.settings.ReloadDebounce, func() {
			if err := a.hub.Reload(ctx); err != nil {
				logging.Error(appSubsystem, err, "Keeping current providers")
			}
		})
		if err := a.watcher.Start(ctx); err != nil {
			logging.Warn(appSubsystem, "Config watch disabled: %v", err)
			a.watcher = nil
		}
	}

	<-ctx.Done()
	logging.Info(appSubsystem, "Shutting down")
	notify(daemon.SdNotifyStopping)

	if err := a.server.Shutdown(context.Background()); err != nil {
		logging.Warn(appSubsystem, "HTTP shutdown: %v", err)
	}
	return nil
}

func (a *Application) close() {
	a.closeOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		a.hub.Shutdown()
		if err := a.store.Close(); err != nil {
			logging.Warn(appSubsystem, "Closing store: %v", err)
		}
	})
}
