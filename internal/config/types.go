package config

import (
	"time"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings for database connections.
type DatabaseTLSConfig struct {
	// Mode controls TLS behavior:
	//   - "off": plaintext
	//   - "skip-verify": TLS without certificate verification
	//   - "verify-ca": verify the server certificate against CAFile
	//   - "verify-full": verify-ca plus hostname check
	Mode string `mapstructure:"mode"`

	CAFile string `mapstructure:"ca_file"`
	// CAFileEnv names an environment variable holding the CA path.
	CAFileEnv string `mapstructure:"ca_file_env"`

	CertFile    string `mapstructure:"cert_file"`
	CertFileEnv string `mapstructure:"cert_file_env"`
	KeyFile     string `mapstructure:"key_file"`
	KeyFileEnv  string `mapstructure:"key_file_env"`

	// ServerName overrides the host name used for verification.
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Driver selects the SQL dialect: "mysql" (default) or "postgres".
	Driver string `mapstructure:"driver"`

	// ConnectionString is a complete driver DSN. For mysql it is a
	// go-sql-driver DSN (user:pass@tcp(host:port)/db), for postgres a
	// postgres:// URL or key=value string. When set it overrides the
	// discrete fields below.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	// Supports "@-" to read from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`

	// QueryTimeout bounds each report query. Zero means no deadline beyond the request context.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	// ReadOnly runs report queries inside read-only transactions.
	ReadOnly bool `mapstructure:"read_only"`
	// MigrateOnStart applies the embedded schema migrations before serving.
	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

const defaultDatabaseName = "fleet"

// AuthConfig holds authentication parameters.
type AuthConfig struct {
	OIDCEnabled   bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCClockSkew time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Auth AuthConfig `mapstructure:"auth"`

	// MaxBodyBytes caps report request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// VerifySchemaOnStart compares the registry against the live catalog at startup.
	VerifySchemaOnStart bool `mapstructure:"verify_schema_on_start"`

	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration `mapstructure:"health_check_timeout"`

	TLSMode     string `mapstructure:"tls_mode"` // "off" or "file"
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`  // debug, info, warn, error
	Format         string `mapstructure:"format"` // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	// OTLP holds the exporter defaults shared by every signal.
	OTLP OTLPConfig `mapstructure:"otlp"`

	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	return c.OTLP.overlay(c.Traces)
}

func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	return c.OTLP.overlay(c.Logs)
}

func (c *ObservabilityConfig) GetMetricsConfig() OTLPConfig {
	return c.OTLP.overlay(c.Metrics)
}

// overlay returns o with every non-zero field of signal applied on top.
// Insecure is always taken from signal when present since false is a valid override.
func (o OTLPConfig) overlay(signal *OTLPConfig) OTLPConfig {
	if signal == nil {
		return o
	}
	merged := o

	if signal.Endpoint != "" {
		merged.Endpoint = signal.Endpoint
	}
	if signal.Protocol != "" {
		merged.Protocol = signal.Protocol
	}
	merged.Insecure = signal.Insecure
	if signal.TLSCertFile != "" {
		merged.TLSCertFile = signal.TLSCertFile
	}
	if signal.TLSClientCertFile != "" {
		merged.TLSClientCertFile = signal.TLSClientCertFile
	}
	if signal.TLSClientKeyFile != "" {
		merged.TLSClientKeyFile = signal.TLSClientKeyFile
	}
	if signal.Headers != nil {
		merged.Headers = make(map[string]string, len(o.Headers)+len(signal.Headers))
		for k, v := range o.Headers {
			merged.Headers[k] = v
		}
		for k, v := range signal.Headers {
			merged.Headers[k] = v
		}
	}
	if signal.Timeout != 0 {
		merged.Timeout = signal.Timeout
	}
	if signal.Compression != "" {
		merged.Compression = signal.Compression
	}
	if signal.RetryMaxAttempts != 0 {
		merged.RetryEnabled = signal.RetryEnabled
		merged.RetryMaxAttempts = signal.RetryMaxAttempts
	}
	return merged
}
