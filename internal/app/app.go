// Package app wires the auth subsystem together for the authctl tool:
// credential backend selection, logging, and the session controller.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pocketclub/authcore/pkg/authsdk"
	"github.com/pocketclub/authcore/pkg/credstore"
	"github.com/pocketclub/authcore/pkg/credstore/sqlite"
	"github.com/pocketclub/authcore/pkg/cryptox"
	"github.com/pocketclub/authcore/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// App owns one fully wired auth subsystem instance. Everything stateful
// (token cache, in-flight refresh, session state) lives behind these
// fields; nothing is a package-level global.
type App struct {
	cfg    Config
	logger *slog.Logger

	fileStore *sqlite.Store // nil when the OS keystore is in use

	store       *credstore.Store
	client      *authsdk.Client
	coordinator *authsdk.Coordinator
	bus         *authsdk.LostAuthBus
	gate        *authsdk.Gate
	controller  *authsdk.Controller
}

// New builds the subsystem. The OS keystore is preferred; when it is
// unavailable the sealed SQLite store takes over with the same contract.
func New(cfg Config) (*App, error) {
	app := &App{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	backend, err := app.openBackend()
	if err != nil {
		return nil, err
	}

	app.store = credstore.New(backend, app.logger)
	app.client = authsdk.NewClient(cfg.BackendURL, app.logger)
	app.coordinator = authsdk.NewCoordinator(app.store, app.client, app.logger)
	app.bus = authsdk.NewLostAuthBus(app.logger)
	app.gate = authsdk.NewGate(nil, app.store, app.coordinator, app.bus, app.logger)
	app.controller = authsdk.NewController(app.store, app.coordinator, app.client, app.bus, app.logger)

	return app, nil
}

func (a *App) openBackend() (credstore.Backend, error) {
	if !a.cfg.ForceFileStore {
		keyring := credstore.NewKeyring(a.cfg.KeyringService)
		if keyring.Available() {
			a.logger.Debug("using OS keystore backend")
			return keyring, nil
		}
		a.logger.Info("OS keystore unavailable, falling back to file store")
	}

	material, err := cryptox.LoadOrCreateKey(a.cfg.SealKeyFile)
	if err != nil {
		return nil, fmt.Errorf("app: seal key: %w", err)
	}

	sealer, err := cryptox.NewSealer(material)
	if err != nil {
		return nil, fmt.Errorf("app: sealer: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", a.cfg.DatabaseFile)
	store, err := sqlite.NewStore(dsn, sealer)
	if err != nil {
		return nil, fmt.Errorf("app: open credential database: %w", err)
	}

	if err := store.ApplyMigrations(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: apply credential migrations: %w", err)
	}

	a.fileStore = store
	return store, nil
}

// Controller exposes the session facade.
func (a *App) Controller() *authsdk.Controller { return a.controller }

// HTTPClient returns the gated client every backend call should use.
func (a *App) HTTPClient() *http.Client { return a.gate.Client() }

// Run initializes the session and consumes the lost-auth signal until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	snap := a.controller.Initialize(ctx)
	a.logger.Info("session restored", "state", snap.State.String())
	return a.controller.Run(ctx)
}

// Close releases the bus and, when in use, the file store.
func (a *App) Close() error {
	if err := a.bus.Close(); err != nil {
		a.logger.Warn("closing event bus", "error", err)
	}

	if a.fileStore != nil {
		return a.fileStore.Close()
	}
	return nil
}

// Logger exposes the configured root logger.
func (a *App) Logger() *slog.Logger { return a.logger }
