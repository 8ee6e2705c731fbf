// Package printdock wires the printer record components into a running
// application: configuration, logging, the SQLite stores, the record facade,
// and the optional sync and discovery collaborators.
//
// Typical embedding:
//
//	app, err := printdock.Open(ctx, "")
//	if err != nil {
//		return err
//	}
//	defer app.Close()
//
//	printer, err := app.Printers.AddPrinter(ctx, storage.NewPrinter("Voron", "voron.local", apiKey))
//
// The remote record store transport is supplied by the caller through
// remote.Store; this module only carries the opaque (remoteID, payload) pair.
package printdock

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"printdock/config"
	"printdock/discovery"
	"printdock/logger"
	"printdock/printers"
	"printdock/remote"
	"printdock/storage"
)

// App bundles the wired components. The exported fields are ready to use
// once Open returns. Lifecycle methods (StartSync, StartDiscovery, Close)
// are meant for startup and shutdown from a single goroutine; the component
// fields themselves are safe for concurrent use.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Store    *storage.SQLiteStore
	Settings storage.SettingsStore
	Printers *printers.Manager

	worker  *remote.Worker
	feed    *remote.Feed
	browser *discovery.Browser
}

// Open loads configuration and wires the stores and the facade. An empty
// configPath falls back to the platform search paths, then to built-in
// defaults when no config file exists. Sync and discovery are not started
// here; see StartSync and StartDiscovery.
func Open(ctx context.Context, configPath string) (*App, error) {
	cfg := config.Default()
	if path := config.ResolveConfigPath(configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return OpenWithConfig(ctx, cfg)
}

// OpenWithConfig wires the components from an explicit configuration
func OpenWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New(logger.LevelFromString(cfg.Logging.Level), cfg.Logging.Dir, 1000)
	storage.SetLogger(log)

	dbPath, settingsPath, err := resolvePaths(cfg.Database.Path)
	if err != nil {
		log.Close()
		return nil, err
	}

	settings, err := storage.NewSettingsStore(settingsPath)
	if err != nil {
		log.Close()
		return nil, err
	}

	store, err := storage.NewSQLiteStoreWithSettings(dbPath, settings)
	if err != nil {
		settings.Close()
		log.Close()
		return nil, err
	}

	mgr, err := printers.NewManager(ctx, store, settings, log)
	if err != nil {
		store.Close()
		settings.Close()
		log.Close()
		return nil, err
	}

	log.Info("Printer records opened", "database", dbPath, "printers", mgr.Count())

	return &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Settings: settings,
		Printers: mgr,
	}, nil
}

// resolvePaths picks the database locations. Settings always live beside the
// printer database so a corruption rotation never discards the account
// fingerprint; in-memory databases keep settings in memory too.
func resolvePaths(dbPath string) (string, string, error) {
	switch dbPath {
	case "":
		resolved, err := storage.GetDefaultDBPath()
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve database path: %w", err)
		}
		settingsPath, err := storage.GetDefaultSettingsPath()
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve settings path: %w", err)
		}
		return resolved, settingsPath, nil
	case ":memory:":
		return dbPath, "", nil
	default:
		return dbPath, filepath.Join(filepath.Dir(dbPath), "settings.db"), nil
	}
}

// StartSync starts the background push worker against the supplied remote
// store transport and, when the config carries a feed URL, the websocket
// change feed. Callers normally gate this on Config.Sync.Enabled.
func (a *App) StartSync(store remote.Store) error {
	if a.worker != nil {
		return fmt.Errorf("sync already started")
	}

	a.worker = remote.NewWorker(store, a.Printers, a.Log, remote.WorkerConfig{
		SyncInterval: time.Duration(a.Config.Sync.PushIntervalSeconds) * time.Second,
	})
	a.worker.Start()

	if a.Config.Sync.URL != "" {
		a.feed = remote.NewFeed(a.Config.Sync.URL, a.Config.Sync.Token, a.Printers, a.Log, remote.FeedConfig{
			InsecureSkipVerify: a.Config.Sync.InsecureSkipVerify,
		})
		a.feed.Start()
	}
	return nil
}

// SyncStatus returns a snapshot of the push worker. The zero value is
// returned before StartSync.
func (a *App) SyncStatus() remote.WorkerStatus {
	return a.worker.Status()
}

// TriggerSync nudges the push worker to run a cycle now
func (a *App) TriggerSync() {
	if a.worker != nil {
		a.worker.TriggerSync()
	}
}

// FeedConnected reports whether the websocket change feed is up
func (a *App) FeedConnected() bool {
	return a.feed != nil && a.feed.IsConnected()
}

// StartDiscovery begins continuous LAN browsing. Each new printer
// advertisement is handed to onCandidate exactly once; Discovered returns
// everything seen so far. Callers normally gate this on
// Config.Discovery.Enabled.
func (a *App) StartDiscovery(onCandidate func(discovery.Candidate)) error {
	if a.browser != nil {
		return fmt.Errorf("discovery already started")
	}

	browser := discovery.NewBrowser(a.discoveryConfig(), onCandidate, a.Log)
	if err := browser.Start(); err != nil {
		return err
	}
	a.browser = browser
	return nil
}

// Discovered returns the candidates seen by the continuous browser
func (a *App) Discovered() []discovery.Candidate {
	if a.browser == nil {
		return nil
	}
	return a.browser.Known()
}

// Scan runs a one-shot bounded discovery pass independent of the
// continuous browser
func (a *App) Scan(ctx context.Context) ([]discovery.Candidate, error) {
	return discovery.Discover(ctx, a.discoveryConfig(), a.Log)
}

func (a *App) discoveryConfig() discovery.Config {
	return discovery.Config{
		ServiceTypes: a.Config.Discovery.ServiceTypes,
		Domain:       a.Config.Discovery.Domain,
		Timeout:      time.Duration(a.Config.Discovery.TimeoutSeconds) * time.Second,
	}
}

// Close stops the background collaborators and closes the stores and the
// logger. Safe to call once after a successful Open.
func (a *App) Close() error {
	if a.browser != nil {
		a.browser.Stop()
		a.browser = nil
	}
	if a.feed != nil {
		a.feed.Stop()
		a.feed = nil
	}
	if a.worker != nil {
		a.worker.Stop()
		a.worker = nil
	}

	var firstErr error
	if err := a.Store.Close(); err != nil {
		firstErr = err
	}
	if a.Settings != nil {
		if err := a.Settings.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
