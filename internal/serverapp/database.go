package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"fleet-reports/internal/config"
	"fleet-reports/internal/dbexec"
	"fleet-reports/internal/introspection"
	"fleet-reports/internal/logging"
	"fleet-reports/internal/schema"
	"fleet-reports/internal/sqlutil"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const maxConnectRetryInterval = 30 * time.Second

type statsRegistration interface{ Unregister() error }

func dbSystemAttribute(dialect sqlutil.Dialect) attribute.KeyValue {
	if dialect == sqlutil.DialectPostgres {
		return semconv.DBSystemPostgreSQL
	}
	return semconv.DBSystemMySQL
}

// connectDB opens the pool for dialect. With metrics or tracing on, the
// driver is wrapped by otelsql; pool stats are only registered for metrics.
func connectDB(cfg *config.Config, dialect sqlutil.Dialect, logger *logging.Logger) (*sql.DB, statsRegistration, error) {
	// verify-ca/verify-full on mysql need a registered TLS config before Open.
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	obs := cfg.Observability
	dsn, driver := cfg.Database.DSN(), dialect.DriverName()
	if !obs.MetricsEnabled && !obs.TracingEnabled {
		db, err := sql.Open(driver, dsn)
		return db, nil, err
	}

	db, err := otelsql.Open(driver, dsn, otelsqlOptions(obs, dialect, logger)...)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database instrumentation enabled",
		slog.String("driver", driver),
		slog.Bool("metrics", obs.MetricsEnabled),
		slog.Bool("tracing", obs.TracingEnabled),
	)
	if !obs.MetricsEnabled {
		return db, nil, nil
	}

	reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystemAttribute(dialect)))
	if err != nil {
		logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		return db, nil, nil
	}
	return db, reg, nil
}

func otelsqlOptions(obs config.ObservabilityConfig, dialect sqlutil.Dialect, logger *logging.Logger) []otelsql.Option {
	opts := []otelsql.Option{otelsql.WithAttributes(dbSystemAttribute(dialect))}
	if !obs.TracingEnabled {
		if obs.SQLCommenterEnabled {
			logger.Warn("sqlcommenter needs tracing; report queries will not carry trace comments")
		}
		return opts
	}
	opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	if obs.SQLCommenterEnabled {
		opts = append(opts, otelsql.WithSQLCommenter(true))
		logger.Info("sqlcommenter enabled: report queries carry the trace context")
	}
	return opts
}

// configureDatabase sizes the pool and waits for the first successful ping.
func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string, databaseSource string, dsnPresent bool) error {
	pool := cfg.Database.Pool
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database_effective", effectiveDatabase),
		slog.String("database_source", databaseSource),
		slog.Bool("dsn_present", dsnPresent),
		slog.Int("pool_max_open", pool.MaxOpen),
		slog.Int("pool_max_idle", pool.MaxIdle),
		slog.Duration("pool_max_lifetime", pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers or ConnectionTimeout
// elapses, doubling the wait between attempts up to 30s. A zero timeout
// pings once.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	if timeout == 0 {
		return db.PingContext(ctx)
	}
	wait := cfg.Database.ConnectionRetryInterval
	if wait <= 0 {
		wait = time.Second
	}

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database reachable", slog.Int("attempts", attempt))
			}
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not reachable yet",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(2*wait, maxConnectRetryInterval)
	}
}

func buildQueryExecutor(cfg *config.Config, db *sql.DB) dbexec.QueryExecutor {
	if cfg.Database.ReadOnly {
		return dbexec.NewReadOnlyExecutor(dbexec.ReadOnlyExecutorConfig{
			DB:      db,
			Timeout: cfg.Database.QueryTimeout,
		})
	}
	return dbexec.NewPoolExecutor(db, cfg.Database.QueryTimeout)
}

// verifySchema logs every registry column the live catalog does not back.
// Mismatches are warnings; only a catalog read failure stops startup.
func verifySchema(ctx context.Context, logger *logging.Logger, catalog *introspection.Catalog, registry *schema.Registry) error {
	mismatches, err := catalog.Verify(ctx, registry)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		logger.Warn("schema registry does not match database",
			slog.String("table", m.Entity.String()),
			slog.String("column", m.Column),
			slog.String("reason", m.Reason),
		)
	}
	if len(mismatches) == 0 {
		logger.Info("schema registry verified against database")
	}
	return nil
}
