package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"fleet-reports/internal/sqlutil"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "fleet-reports-custom"

// Dialect returns the SQL dialect selected by Driver.
func (d *DatabaseConfig) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.ParseDialect(d.Driver)
}

// DSN returns a data source name for the configured driver.
// If ConnectionString is set, it is used as the base; otherwise one is built
// from the discrete fields.
func (d *DatabaseConfig) DSN() string {
	dialect, err := d.Dialect()
	if err != nil {
		return ""
	}
	if dialect == sqlutil.DialectPostgres {
		return d.postgresDSN()
	}
	return d.mysqlDSN()
}

// mysqlDSN always enables parseTime so DATETIME columns scan into
// time.Time. A connection string that does not parse is returned as is and
// left to the driver to reject.
func (d *DatabaseConfig) mysqlDSN() string {
	cfg := mysql.NewConfig()
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return d.ConnectionString
		}
		cfg = parsed
	} else {
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
	}

	cfg.ParseTime = true
	if cfg.TLSConfig == "" {
		cfg.TLSConfig = d.mysqlTLSParam()
	}
	return cfg.FormatDSN()
}

// postgresDSN renders a postgres:// URL understood by pgx. A configured
// connection string is passed through untouched apart from sslmode.
func (d *DatabaseConfig) postgresDSN() string {
	sslMode, sslParams := d.postgresTLSParams()

	if d.ConnectionString != "" {
		dsn := d.ConnectionString
		if sslMode == "" || strings.Contains(dsn, "sslmode") {
			return dsn
		}
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			return dsn + sep + "sslmode=" + sslMode
		}
		return dsn + " sslmode=" + sslMode
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}

	q := url.Values{}
	if sslMode != "" {
		q.Set("sslmode", sslMode)
	}
	for k, v := range sslParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// EffectiveDatabaseName returns the database name used for catalog lookups.
func (d *DatabaseConfig) EffectiveDatabaseName() (name string, source string, err error) {
	return resolveEffectiveDatabaseName(d.Driver, d.Database, d.ConnectionString)
}

// resolveEffectiveDatabaseName reconciles database.database with the
// database named in the DSN. They must agree when both are present.
func resolveEffectiveDatabaseName(driver, databaseName, connectionString string) (name string, source string, err error) {
	configured := strings.TrimSpace(databaseName)
	fromDSN, err := parseDSNDatabaseName(driver, connectionString)
	switch {
	case err != nil:
		return "", "", err
	case configured != "" && fromDSN != "" && configured != fromDSN:
		return "", "", fmt.Errorf("database mismatch: database.database=%q but database.dsn targets %q", configured, fromDSN)
	case configured != "":
		return configured, "database.database", nil
	case fromDSN != "":
		return fromDSN, "dsn", nil
	}
	return "", "", errors.New("no effective database name configured: set database.database or include /<database> in database.dsn/database.dsn_file")
}

func parseDSNDatabaseName(driver, connectionString string) (string, error) {
	dsn := strings.TrimSpace(connectionString)
	if dsn == "" {
		return "", nil
	}

	dialect, err := sqlutil.ParseDialect(driver)
	if err != nil {
		return "", err
	}

	if dialect == sqlutil.DialectPostgres {
		parsed, err := pgconn.ParseConfig(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		return strings.TrimSpace(parsed.Database), nil
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

// mysqlTLSParam returns the tls= value for a MySQL DSN, or "" when no TLS mode is configured.
func (d *DatabaseConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// postgresTLSParams maps the TLS mode onto libpq-style sslmode and file parameters.
func (d *DatabaseConfig) postgresTLSParams() (string, map[string]string) {
	params := map[string]string{}
	var mode string
	switch d.TLS.Mode {
	case "":
		return "", params
	case "off":
		mode = "disable"
	case "skip-verify":
		mode = "require"
	default:
		mode = d.TLS.Mode
	}

	if ca := d.TLS.resolveCAFile(); ca != "" {
		params["sslrootcert"] = ca
	}
	if cert := d.TLS.resolveCertFile(); cert != "" {
		params["sslcert"] = cert
	}
	if key := d.TLS.resolveKeyFile(); key != "" {
		params["sslkey"] = key
	}
	return mode, params
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// It must run before the pool is opened when using verify-ca or verify-full.
// Postgres reads certificates from the DSN, so nothing is registered there.
func (d *DatabaseConfig) RegisterTLS() error {
	if dialect, err := d.Dialect(); err != nil || dialect != sqlutil.DialectMySQL {
		return nil
	}
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err == nil {
		err = mysql.RegisterTLSConfig(tlsConfigName, tlsCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to register MySQL TLS config: %w", err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if d.TLS.Mode == "verify-full" {
		tlsCfg.ServerName = d.TLS.ServerName
	}

	if caFile := d.TLS.resolveCAFile(); caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}
		tlsCfg.RootCAs = x509.NewCertPool()
		if !tlsCfg.RootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
	}

	certFile, keyFile := d.TLS.resolveCertFile(), d.TLS.resolveKeyFile()
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("both cert_file and key_file must be specified for client certificate authentication")
	}
	if certFile != "" {
		pair, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}
	return tlsCfg, nil
}

func envOr(envName, fallback string) string {
	if envName != "" {
		if path := os.Getenv(envName); path != "" {
			return path
		}
	}
	return fallback
}

func (t *DatabaseTLSConfig) resolveCAFile() string   { return envOr(t.CAFileEnv, t.CAFile) }
func (t *DatabaseTLSConfig) resolveCertFile() string { return envOr(t.CertFileEnv, t.CertFile) }
func (t *DatabaseTLSConfig) resolveKeyFile() string  { return envOr(t.KeyFileEnv, t.KeyFile) }
