package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"fleet-reports/internal/httpapi"
	"fleet-reports/internal/introspection"
	"fleet-reports/internal/migrations"
	"fleet-reports/internal/report"
	"fleet-reports/internal/schema"
)

// Init acquires every runtime resource in order: telemetry, database, report
// service, HTTP server. Resources acquired before a failure are released
// again. Init is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup cleanupStack
	ok := false
	defer func() {
		if !ok {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(ctx context.Context) error {
			return a.loggerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	// Registry problems are programming errors; report them before any I/O.
	registry, err := schema.Default()
	if err != nil {
		return fmt.Errorf("invalid schema registry: %w", err)
	}

	inst, err := a.initTelemetry(&cleanup)
	if err != nil {
		return err
	}

	db, err := a.openDatabase(ctx, &cleanup)
	if err != nil {
		return err
	}

	executor := buildQueryExecutor(a.cfg, db)
	catalog := introspection.NewCatalog(executor, a.dialect, a.effectiveDatabase)
	if a.cfg.Server.VerifySchemaOnStart {
		if err := verifySchema(ctx, a.logger, catalog, registry); err != nil {
			return fmt.Errorf("failed to verify schema against database: %w", err)
		}
	}

	reports := report.NewService(report.Config{
		Registry: registry,
		Dialect:  a.dialect,
		Executor: executor,
		Metrics:  inst.reports,
	})

	apiHandler, err := buildAPIHandler(a.cfg, a.logger, reports, catalog, inst.security)
	if err != nil {
		return fmt.Errorf("failed to initialize report handler: %w", err)
	}
	handler := wrapHTTPHandler(a.cfg, a.logger, buildRouter(a.cfg, a.logger, db, apiHandler, inst.provider), inst.security)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv, tlsManager, err := buildServer(a.cfg, a.logger, handler, serverAddr)
	if err != nil {
		return err
	}
	if tlsManager != nil {
		cleanup.push("TLS manager", func(context.Context) error { return tlsManager.Shutdown() })
	}
	cleanup.push("HTTP server", srv.Shutdown)

	a.stateMu.Lock()
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	ok = true
	return nil
}

// initTelemetry starts the meter and tracer providers that the configuration
// enables and registers their shutdown with cleanup.
func (a *App) initTelemetry(cleanup *cleanupStack) (instruments, error) {
	inst, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return instruments{}, fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if inst.provider != nil {
		cleanup.push("meter provider", func(ctx context.Context) error {
			return inst.provider.Shutdown(ctx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return instruments{}, fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}
	return inst, nil
}

// openDatabase connects, waits for the server, and applies migrations when
// database.migrate_on_start is set.
func (a *App) openDatabase(ctx context.Context, cleanup *cleanupStack) (*sql.DB, error) {
	a.logger.Info("connecting to database",
		slog.String("driver", string(a.dialect)),
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database_effective", a.effectiveDatabase),
		slog.String("database_source", a.databaseSource),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, stats, err := connectDB(a.cfg, a.dialect, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(context.Context) error {
		if stats != nil {
			if err := stats.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.effectiveDatabase, a.databaseSource, a.dsnPresent); err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	if a.cfg.Database.MigrateOnStart {
		if err := migrations.Up(ctx, db, a.dialect, a.logger.Logger); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}
	return db, nil
}

var (
	_ httpapi.ReportRunner  = (*report.Service)(nil)
	_ httpapi.ColumnCatalog = (*introspection.Catalog)(nil)
)
