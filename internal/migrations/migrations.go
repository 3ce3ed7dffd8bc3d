// Package migrations embeds the schema migrations for the four report tables
// and applies them with golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"fleet-reports/internal/sqlutil"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed mysql/*.sql postgres/*.sql
var files embed.FS

// Source returns the migration files for a dialect.
func Source(dialect sqlutil.Dialect) (fs.FS, error) {
	dir, err := sourceDir(dialect)
	if err != nil {
		return nil, err
	}
	return fs.Sub(files, dir)
}

func sourceDir(dialect sqlutil.Dialect) (string, error) {
	switch dialect {
	case sqlutil.DialectMySQL:
		return "mysql", nil
	case sqlutil.DialectPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

// Up applies all pending migrations on a dedicated connection taken from db.
// The pool itself stays open.
func Up(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, logger *slog.Logger) error {
	dir, err := sourceDir(dialect)
	if err != nil {
		return err
	}
	src, err := iofs.New(files, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}

	driver, err := databaseDriver(ctx, conn, dialect)
	if err != nil {
		_ = src.Close()
		_ = conn.Close()
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migration resources",
				slog.Any("source_error", srcErr),
				slog.Any("database_error", dbErr),
			)
		}
	}()

	before, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is at dirty migration version %d; fix it manually before starting", before)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("database schema is up to date", slog.Uint64("version", uint64(before)))
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	after, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Info("database migrations applied",
		slog.Uint64("from_version", uint64(before)),
		slog.Uint64("to_version", uint64(after)),
	)
	return nil
}

func databaseDriver(ctx context.Context, conn *sql.Conn, dialect sqlutil.Dialect) (database.Driver, error) {
	switch dialect {
	case sqlutil.DialectPostgres:
		driver, err := migratepgx.WithConnection(ctx, conn, &migratepgx.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres migration driver: %w", err)
		}
		return driver, nil
	default:
		driver, err := migratemysql.WithConnection(ctx, conn, &migratemysql.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create mysql migration driver: %w", err)
		}
		return driver, nil
	}
}
