// Package app wires the sync manager's components together.
package app

import (
	"database/sql"
	"log/slog"
	"net/http"

	"tms-sync/internal/api"
	"tms-sync/internal/config"
	"tms-sync/internal/db/repository"
	"tms-sync/internal/domain"
	"tms-sync/internal/sync"
)

// Deps holds external dependencies injected into the application.
type Deps struct {
	Cfg      *config.Config
	SourceDB *sql.DB
	TargetDB *sql.DB
	Logger   *slog.Logger
}

// App is the assembled application graph.
type App struct {
	Service   *sync.Service
	Scheduler *sync.Scheduler
	Router    http.Handler
}

// New builds the application from its dependencies.
func New(deps Deps) *App {
	specs := sync.Specs()

	registry := sync.NewRegistry()
	syncLog := repository.NewSyncLogRepo(deps.TargetDB, deps.Cfg.Target.Driver)
	extractor := sync.NewSourceExtractor(deps.SourceDB, deps.Cfg.Source.Driver, deps.Cfg.BatchSize)
	transformer := sync.NewTransformer()
	loader := sync.NewTargetLoader(deps.TargetDB, deps.Cfg.Target.Driver, deps.Logger)
	schema := sync.NewSchema(deps.TargetDB, deps.Cfg.Target.Driver, specs)

	service := sync.NewService(
		registry, syncLog, extractor, transformer, loader, schema, specs,
		deps.Cfg.SyncWorkers, deps.Cfg.SyncQueueSize, deps.Logger,
	)

	scheduler := sync.NewScheduler(
		service, deps.Cfg.Schedule, domain.SyncType(deps.Cfg.ScheduleType), deps.Logger,
	)

	handler := api.NewHandler(service, deps.Logger)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSAllowedOrigins: deps.Cfg.CORSAllowedOrigins,
		RateLimitRPS:       deps.Cfg.RateLimitRPS,
		RateLimitBurst:     deps.Cfg.RateLimitBurst,
	})

	return &App{Service: service, Scheduler: scheduler, Router: router}
}
