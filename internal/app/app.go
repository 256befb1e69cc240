// Package app wires the stores, the worker supervisor and the launcher from
// configuration. It is shared by the server and the CLI.
package app

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phototag/catalog-service/config"
	"github.com/phototag/catalog-service/internal/catalog"
	"github.com/phototag/catalog-service/internal/database"
	"github.com/phototag/catalog-service/internal/ingest"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/launcher"
	"github.com/phototag/catalog-service/internal/storage"
	"github.com/phototag/catalog-service/internal/taskqueue"
	"github.com/phototag/catalog-service/internal/workers"
	"github.com/rs/zerolog"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Pool       *pgxpool.Pool
	Ledger     *jobs.Ledger
	Queue      *taskqueue.TaskQueue
	Catalog    *catalog.Store
	Storage    *storage.LocalStorage
	Supervisor *workers.Supervisor
	Launcher   *launcher.Launcher
	Logger     zerolog.Logger
}

// New builds the application on an open pool
func New(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*App, error) {
	store, err := storage.NewLocalStorage(cfg.Content.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a := &App{
		Config:  cfg,
		Pool:    pool,
		Ledger:  jobs.NewLedger(pool),
		Queue:   taskqueue.New(pool),
		Catalog: catalog.NewStore(pool),
		Storage: store,
		Logger:  logger,
	}

	a.Supervisor = workers.NewSupervisor(cfg.Jobs.MaxConcurrentWorkers, logger)
	a.Supervisor.Register(jobs.KindImport,
		workers.NewEngine(a.Ledger, a.Queue, workers.SettingsFor(cfg.Jobs, jobs.KindImport), logger),
		workers.ImportFactory(cfg.Content.SourceDir, a.Catalog, store,
			ingest.Fingerprinter{SlowThreshold: cfg.Jobs.SlowFingerprint}),
	)
	a.Supervisor.Register(jobs.KindUpdate,
		workers.NewEngine(a.Ledger, a.Queue, workers.SettingsFor(cfg.Jobs, jobs.KindUpdate), logger),
		workers.UpdateFactory(cfg.Content.MetadataPath, a.Catalog, logger),
	)

	a.Launcher = launcher.New(a.Ledger, a.Queue, database.PoolTransactor{Pool: pool}, a.Supervisor, logger,
		launcher.DirectorySource{
			Root:    cfg.Content.SourceDir,
			Allowed: ingest.NewExtensionSet(cfg.Content.AllowedExtensions),
		},
		launcher.MetadataSource{Path: cfg.Content.MetadataPath},
	)

	return a, nil
}
