// Package testdb provisions throwaway MySQL databases for integration tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"fleet-reports/internal/migrations"
	"fleet-reports/internal/sqlutil"

	"github.com/go-sql-driver/mysql"
)

// TestDB is an isolated database with the report tables migrated.
type TestDB struct {
	DB           *sql.DB
	DatabaseName string
	config       Config
}

// Config holds the server connection read from the environment.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	TLSMode  string
}

// New creates a uniquely named database, applies the embedded migrations and
// drops the database when the test ends. The test is skipped when
// FLEETREP_TEST_DB_HOST is unset.
func New(t *testing.T) *TestDB {
	t.Helper()

	cfg := configFromEnv(t)
	dbName := fmt.Sprintf("it_%s_%d", sanitizeName(t.Name()), time.Now().UnixMilli())
	if !isValidDatabaseName(dbName) {
		t.Fatalf("invalid database name generated: %s", dbName)
	}

	admin := open(t, cfg.DSN(""))
	if _, err := admin.Exec("CREATE DATABASE " + sqlutil.QuoteIdentifier(dbName)); err != nil {
		_ = admin.Close()
		t.Fatalf("failed to create test database %s: %v", dbName, err)
	}
	_ = admin.Close()

	db := open(t, cfg.DSN(dbName))
	tdb := &TestDB{DB: db, DatabaseName: dbName, config: cfg}
	t.Cleanup(func() { tdb.Teardown(t) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := migrations.Up(ctx, db, sqlutil.DialectMySQL, quiet); err != nil {
		t.Fatalf("failed to migrate test database %s: %v", dbName, err)
	}

	return tdb
}

// Config returns the connection settings the database was created with.
func (tdb *TestDB) Config() Config {
	return tdb.config
}

// DSN returns a go-sql-driver DSN for the test database.
func (tdb *TestDB) DSN() string {
	return tdb.config.DSN(tdb.DatabaseName)
}

// Teardown drops the test database and closes the pool.
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()
	if tdb.DB == nil {
		return
	}
	if isValidDatabaseName(tdb.DatabaseName) {
		if _, err := tdb.DB.Exec("DROP DATABASE IF EXISTS " + sqlutil.QuoteIdentifier(tdb.DatabaseName)); err != nil {
			t.Logf("warning: failed to drop test database %s: %v", tdb.DatabaseName, err)
		}
	}
	if err := tdb.DB.Close(); err != nil {
		t.Logf("warning: failed to close test database connection: %v", err)
	}
	tdb.DB = nil
}

// LoadFixtures executes every statement of a SQL file against the test database.
func (tdb *TestDB) LoadFixtures(t *testing.T, path string) {
	t.Helper()

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture file %s: %v", path, err)
	}
	for i, stmt := range splitSQL(string(payload)) {
		if _, err := tdb.DB.Exec(stmt); err != nil {
			t.Fatalf("failed to execute fixture statement %d: %v\nStatement: %s", i+1, err, stmt)
		}
	}
}

// DSN renders a DSN for database, or for no default database when empty.
func (c Config) DSN(database string) string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, c.Port)
	mc.DBName = database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.MultiStatements = true
	if c.TLSMode != "" {
		mc.TLSConfig = c.TLSMode
	}
	return mc.FormatDSN()
}

func configFromEnv(t *testing.T) Config {
	t.Helper()

	cfg := Config{
		Host:     os.Getenv("FLEETREP_TEST_DB_HOST"),
		Port:     os.Getenv("FLEETREP_TEST_DB_PORT"),
		User:     os.Getenv("FLEETREP_TEST_DB_USER"),
		Password: os.Getenv("FLEETREP_TEST_DB_PASSWORD"),
		TLSMode:  os.Getenv("FLEETREP_TEST_DB_TLS"),
	}
	if cfg.Host == "" {
		t.Skip("FLEETREP_TEST_DB_HOST not set; skipping database integration test")
	}
	if cfg.Port == "" {
		cfg.Port = "3306"
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	return cfg
}

func open(t *testing.T, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("failed to ping database: %v", err)
	}
	return db
}

// sanitizeName keeps a test name within the identifier character set and
// leaves room for the timestamp suffix under the 64 character limit.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, ch := range name {
		if isValidDatabaseChar(ch) {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// splitSQL splits on semicolons. Fixtures must not contain semicolons in literals.
func splitSQL(text string) []string {
	parts := strings.Split(text, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidDatabaseName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, ch := range name {
		if !isValidDatabaseChar(ch) {
			return false
		}
	}
	return true
}

func isValidDatabaseChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '_'
}
