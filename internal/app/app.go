package app

import (
	"context"

	"go.uber.org/fx"

	"xray/internal/app/bus"
	"xray/internal/app/feed"
	"xray/internal/app/ingest"
	"xray/internal/app/server"
	"xray/internal/app/store"
	"xray/internal/app/watcher"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// App wires the long-running pieces of serve mode together: the ingestion
// listener, the HTTP ingress, the feed socket and the config watcher.
type App struct {
	cfg      *config.Config
	bus      bus.Bus
	store    store.Store
	listener ingest.Listener
	server   server.Server
	feed     feed.Server
	watcher  watcher.Watcher
	cancel   context.CancelFunc
	log      logger.Logger
}

// NewApp creates a new application instance with its dependencies
func NewApp(
	cfg *config.Config,
	b bus.Bus,
	s store.Store,
	listener ingest.Listener,
	srv server.Server,
	feedSrv feed.Server,
	w watcher.Watcher,
	log logger.Logger,
) *App {
	return &App{
		cfg:      cfg,
		bus:      b,
		store:    s,
		listener: listener,
		server:   srv,
		feed:     feedSrv,
		watcher:  w,
		log:      log.WithComponent("APP"),
	}
}

// Start brings up the serve-mode components. Order matters: the listener
// must be draining the bus before the ingress accepts envelopes.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.listener.Start(ctx)

	if err := a.watcher.Start(); err != nil {
		a.log.Warn().Err(err).Msg("Config watching disabled")
	}

	if err := a.feed.Start(ctx); err != nil {
		cancel()

		return err
	}

	if err := a.server.Start(ctx); err != nil {
		cancel()
		_ = a.feed.Stop()

		return err
	}

	a.log.Info().Msgf("%s %s ready", config.AppName, config.Version)

	return nil
}

// Stop tears the components down in reverse order and closes the store last
func (a *App) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, config.ShutdownTimeout)
	defer cancel()

	if err := a.server.Stop(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("Ingress shutdown incomplete")
	}

	if err := a.feed.Stop(); err != nil {
		a.log.Warn().Err(err).Msg("Feed shutdown incomplete")
	}

	a.watcher.Close()

	if a.cancel != nil {
		a.cancel()
	}

	a.bus.Close()

	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Store close failed")
	}

	a.log.Info().Msg("Stopped")

	logger.Flush()

	return nil
}

// Register registers the application's lifecycle hooks with fx
func Register(lifecycle fx.Lifecycle, app *App) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return app.Start()
		},
		OnStop: func(ctx context.Context) error {
			return app.Stop(ctx)
		},
	})
}
