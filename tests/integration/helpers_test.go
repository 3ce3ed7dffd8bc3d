//go:build integration
// +build integration

package integration

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"fleet-reports/internal/config"
	"fleet-reports/internal/dbexec"
	"fleet-reports/internal/logging"
	"fleet-reports/internal/report"
	"fleet-reports/internal/schema"
	"fleet-reports/internal/serverapp"
	"fleet-reports/internal/sqlutil"
	"fleet-reports/internal/testutil/testdb"

	"github.com/stretchr/testify/require"
)

// seededDB returns a migrated test database loaded with testdata/fleet.sql.
func seededDB(t *testing.T) *testdb.TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testdb.New(t)
	db.LoadFixtures(t, "testdata/fleet.sql")
	return db
}

func newReportService(t *testing.T, db *testdb.TestDB) *report.Service {
	t.Helper()
	reg, err := schema.Default()
	require.NoError(t, err)
	return report.NewService(report.Config{
		Registry: reg,
		Dialect:  sqlutil.DialectMySQL,
		Executor: dbexec.NewReadOnlyExecutor(dbexec.ReadOnlyExecutorConfig{DB: db.DB, Timeout: 10 * time.Second}),
	})
}

// appConfig mirrors the defaults Load would produce for the test database.
func appConfig(t *testing.T, db *testdb.TestDB) *config.Config {
	t.Helper()
	conn := db.Config()
	port, err := strconv.Atoi(conn.Port)
	require.NoError(t, err)

	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:                  "mysql",
			Host:                    conn.Host,
			Port:                    port,
			User:                    conn.User,
			Password:                conn.Password,
			Database:                db.DatabaseName,
			TLS:                     config.DatabaseTLSConfig{Mode: conn.TLSMode},
			Pool:                    config.PoolConfig{MaxOpen: 5, MaxIdle: 2, MaxLifetime: time.Minute},
			ConnectionTimeout:       5 * time.Second,
			ConnectionRetryInterval: 100 * time.Millisecond,
			QueryTimeout:            10 * time.Second,
			ReadOnly:                true,
		},
		Server: config.ServerConfig{
			Port:                freePort(t),
			MaxBodyBytes:        1 << 20,
			VerifySchemaOnStart: true,
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        10 * time.Second,
			IdleTimeout:         30 * time.Second,
			ShutdownTimeout:     5 * time.Second,
			HealthCheckTimeout:  2 * time.Second,
			TLSMode:             "off",
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "fleet-reports",
			Environment: "test",
			Logging:     config.LoggingConfig{Level: "warn", Format: "text"},
		},
	}
}

// startApp initializes the full server stack in-process and serves it from httptest.
func startApp(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: "warn", Output: io.Discard})

	app, err := serverapp.New(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = app.Shutdown(ctx)
	})

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
