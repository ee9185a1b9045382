package api

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/finledger/pipeline/internal/domain/importpipeline/commit"
	importhandler "github.com/finledger/pipeline/internal/domain/importpipeline/handler"
	"github.com/finledger/pipeline/internal/domain/importpipeline/repository"
	"github.com/finledger/pipeline/internal/domain/importpipeline/telemetry"

	"github.com/finledger/pipeline/pkg/config"
	"github.com/finledger/pipeline/pkg/db"
	"github.com/finledger/pipeline/pkg/interceptors"
	"github.com/finledger/pipeline/pkg/observability"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	ImportRepo *repository.Repository
	Telemetry  *telemetry.Recorder
	Committer  *commit.Committer

	ImportHandler *importhandler.Handler
}

// InitDependencies initializes all application dependencies.
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations.
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        d.Config.Database.MaxConns,
		MinConns:        d.Config.Database.MinConns,
		MaxConnLifetime: d.Config.Database.MaxConnLifetime,
		MaxConnIdleTime: d.Config.Database.MaxConnIdleTime,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes the repository layer.
func (d *Dependencies) initRepositories() error {
	d.ImportRepo = repository.New(d.DB.Pool, d.Logger)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes the service layer: telemetry and the commit
// orchestrator sitting on top of the repository.
func (d *Dependencies) initServices() error {
	if d.Config.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	d.Telemetry = telemetry.New(d.ImportRepo, d.Logger)
	d.Committer = commit.New(commit.Dependencies{
		Repo:      d.ImportRepo,
		Logger:    d.Logger,
		Telemetry: d.Telemetry,
	})

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes the HTTP handler layer.
func (d *Dependencies) initHandlers() error {
	tracer := otel.GetTracerProvider().Tracer("finledger/importpipeline")
	d.ImportHandler = importhandler.New(
		d.ImportRepo,
		d.Committer,
		d.Telemetry,
		d.Logger,
		[]byte(d.Config.Auth.JWTSecret),
		importhandler.Limits{
			MaxFileSizeBytes:         d.Config.Import.MaxFileSizeBytes,
			MaxCommitRows:            d.Config.Import.MaxCommitRows,
			PDFExtractTimeoutSeconds: d.Config.Import.PDFExtractTimeoutSeconds,
		},
	).Use(interceptors.TracingMiddleware(tracer), observability.MetricsMiddleware)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources.
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
