package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// setting is one configuration key. Its value is the default and its Go type
// selects the flag type. Keys under observability.traces, .logs and .metrics
// carry no default so the per-signal overlays stay nil unless configured.
type setting struct {
	key   string
	value any
	usage string
}

var settings = []setting{
	{"database.driver", "mysql", "Database driver (mysql, postgres)"},
	{"database.dsn", "", "Complete driver DSN (mysql: user:pass@tcp(host:port)/db, postgres: postgres://...)"},
	{"database.dsn_file", "", "Path to file containing database DSN (use @- for stdin)"},
	{"database.host", "localhost", "Database host"},
	{"database.port", 0, "Database port (default 3306 for mysql, 5432 for postgres)"},
	{"database.user", "fleet_reports", "Database user"},
	{"database.password", "", "Database password"},
	{"database.password_file", "", "Path to file containing database password (use @- for stdin)"},
	{"database.password_prompt", false, "Prompt for database password securely"},
	{"database.database", defaultDatabaseName, "Database name"},

	{"database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)"},
	{"database.tls.ca_file", "", "Path to CA certificate for server verification"},
	{"database.tls.ca_file_env", "", "Env var containing CA certificate path"},
	{"database.tls.cert_file", "", "Path to client certificate for mTLS"},
	{"database.tls.cert_file_env", "", "Env var containing client certificate path"},
	{"database.tls.key_file", "", "Path to client private key for mTLS"},
	{"database.tls.key_file_env", "", "Env var containing client key path"},
	{"database.tls.server_name", "", "Override TLS server name for verification"},

	{"database.pool.max_open", 25, "Maximum open database connections"},
	{"database.pool.max_idle", 5, "Maximum idle connections in pool"},
	{"database.pool.max_lifetime", 5 * time.Minute, "Connection max lifetime (e.g. 5m, 30s)"},

	{"database.connection_timeout", 60 * time.Second, "Max time to wait for database on startup (0 = fail immediately)"},
	{"database.connection_retry_interval", 2 * time.Second, "Initial interval between connection retries"},
	{"database.query_timeout", 30 * time.Second, "Deadline for each report query (0 = request context only)"},
	{"database.read_only", true, "Run report queries in read-only transactions"},
	{"database.migrate_on_start", false, "Apply embedded schema migrations at startup"},

	{"server.port", 8080, "HTTP server port"},
	{"server.max_body_bytes", int64(1 << 20), "Maximum accepted report request body size in bytes"},
	{"server.verify_schema_on_start", true, "Compare the report registry with the database catalog at startup"},

	{"server.auth.oidc_enabled", false, "Enable OIDC/JWKS authentication middleware"},
	{"server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)"},
	{"server.auth.oidc_audience", "", "Expected JWT audience (client ID)"},
	{"server.auth.oidc_clock_skew", 2 * time.Minute, "Allowed JWT clock skew (e.g. 2m)"},
	{"server.auth.oidc_ca_file", "", "CA bundle used to reach the OIDC issuer"},

	{"server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints"},
	{"server.rate_limit_rps", 0.0, "Global rate limit requests per second"},
	{"server.rate_limit_burst", 0, "Global rate limit burst size"},
	{"server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)"},
	{"server.cors_allowed_origins", []string{}, "Allowed CORS origins (comma-separated or repeated)"},
	{"server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"}, "Allowed CORS methods (comma-separated or repeated)"},
	{"server.cors_allowed_headers", []string{"Content-Type", "Authorization"}, "Allowed CORS headers (comma-separated or repeated)"},
	{"server.cors_expose_headers", []string{"Content-Disposition"}, "CORS headers to expose to browser (comma-separated or repeated)"},
	{"server.cors_allow_credentials", false, "Allow credentials in CORS requests"},
	{"server.cors_max_age", 86400, "CORS preflight cache duration (seconds)"},
	{"server.read_timeout", 15 * time.Second, "HTTP server read timeout"},
	{"server.write_timeout", 60 * time.Second, "HTTP server write timeout"},
	{"server.idle_timeout", 60 * time.Second, "HTTP server idle timeout"},
	{"server.shutdown_timeout", 30 * time.Second, "HTTP server graceful shutdown timeout"},
	{"server.health_check_timeout", 2 * time.Second, "Health check timeout"},
	{"server.tls_mode", "off", "TLS mode: off, file (default: off)"},
	{"server.tls_cert_file", "", "Path to TLS certificate file (for file mode)"},
	{"server.tls_key_file", "", "Path to TLS private key file (for file mode)"},

	{"observability.service_name", "fleet-reports", "Service name for observability"},
	{"observability.service_version", "", "Service version for observability"},
	{"observability.environment", "development", "Environment name (dev, staging, prod)"},
	{"observability.metrics_enabled", true, "Enable metrics collection"},
	{"observability.tracing_enabled", false, "Enable distributed tracing"},
	{"observability.trace_sample_ratio", 1.0, "Trace sampling ratio from 0.0 to 1.0"},
	{"observability.sqlcommenter_enabled", true, "Inject trace context into SQL queries"},
	{"observability.logging.level", "info", "Log level (debug, info, warn, error)"},
	{"observability.logging.format", "json", "Log format (json, text)"},
	{"observability.logging.exports_enabled", false, "Enable OTLP log export"},

	{"observability.otlp.endpoint", "localhost:4317", "OTLP endpoint for all signals (e.g., localhost:4317)"},
	{"observability.otlp.protocol", "grpc", "OTLP protocol for all signals (grpc, http/protobuf)"},
	{"observability.otlp.insecure", false, "Use insecure connection (no TLS)"},
	{"observability.otlp.tls_cert_file", "", "Path to TLS certificate file for server verification"},
	{"observability.otlp.tls_client_cert_file", "", "Path to client certificate file for mTLS"},
	{"observability.otlp.tls_client_key_file", "", "Path to client key file for mTLS"},
	{"observability.otlp.timeout", 10 * time.Second, "OTLP export timeout"},
	{"observability.otlp.compression", "gzip", "OTLP compression (none, gzip)"},
	{"observability.otlp.retry_enabled", true, "Enable retry on transient errors"},
	{"observability.otlp.retry_max_attempts", 3, "Maximum retry attempts"},

	{"observability.traces.endpoint", "", "OTLP endpoint for traces only"},
	{"observability.traces.protocol", "", "OTLP protocol for traces (grpc, http/protobuf)"},
	{"observability.traces.insecure", false, "Use insecure connection for traces"},
	{"observability.traces.timeout", time.Duration(0), "Timeout for trace exports"},

	{"observability.logs.endpoint", "", "OTLP endpoint for logs only"},
	{"observability.logs.protocol", "", "OTLP protocol for logs (grpc, http/protobuf)"},
	{"observability.logs.insecure", false, "Use insecure connection for logs"},
	{"observability.logs.timeout", time.Duration(0), "Timeout for log exports"},

	{"observability.metrics.endpoint", "", "OTLP endpoint for metrics only"},
	{"observability.metrics.insecure", false, "Use insecure connection for metrics"},
	{"observability.metrics.timeout", time.Duration(0), "Timeout for metric exports"},
}

// overlayOnly reports whether key belongs to a per-signal OTLP overlay.
func overlayOnly(key string) bool {
	for _, prefix := range []string{"observability.traces.", "observability.logs.", "observability.metrics."} {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// defineFlags registers one flag per setting. Flags start at their zero value
// because only flags the operator changed are bound into viper.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		for _, s := range settings {
			switch s.value.(type) {
			case string:
				pflag.String(s.key, "", s.usage)
			case bool:
				pflag.Bool(s.key, false, s.usage)
			case int:
				pflag.Int(s.key, 0, s.usage)
			case int64:
				pflag.Int64(s.key, 0, s.usage)
			case float64:
				pflag.Float64(s.key, 0, s.usage)
			case time.Duration:
				pflag.Duration(s.key, 0, s.usage)
			case []string:
				pflag.StringSlice(s.key, nil, s.usage)
			default:
				panic(fmt.Sprintf("config: setting %s has unsupported type %T", s.key, s.value))
			}
		}
		pflag.StringP("config", "c", "", "Config file path")
	})
}

// setDefaults applies every setting's default (lowest precedence).
func setDefaults(v *viper.Viper) {
	for _, s := range settings {
		if overlayOnly(s.key) {
			continue
		}
		v.SetDefault(s.key, s.value)
	}
}
