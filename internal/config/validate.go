package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"fleet-reports/internal/sqlutil"
)

// ValidationError is a fatal problem with one configuration key.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint == "" {
		return e.Field + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
}

// ValidationWarning is logged at startup but does not stop the server.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult collects every finding instead of stopping at the first.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error joins all errors with "; ". It is empty when there are none.
func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the whole configuration. As a side effect it pins
// Database.Database to the name the server will actually use.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	v := checker{result}

	c.Database.validate(v)
	c.Server.validate(v)
	c.Observability.validate(v)

	return result
}

type checker struct {
	result *ValidationResult
}

func (c checker) fail(field, hint, format string, args ...any) {
	c.result.Errors = append(c.result.Errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Hint:    hint,
	})
}

func (c checker) warn(field, hint, format string, args ...any) {
	c.result.Warnings = append(c.result.Warnings, ValidationWarning{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Hint:    hint,
	})
}

// oneOf accepts value when it is listed. The empty string is accepted only
// when allowed contains it, and it is left out of the hint.
func (c checker) oneOf(field, what, value string, allowed ...string) {
	if slices.Contains(allowed, value) {
		return
	}
	named := slices.DeleteFunc(slices.Clone(allowed), func(s string) bool { return s == "" })
	c.fail(field, "valid values are: "+strings.Join(named, ", "), "invalid %s %q", what, value)
}

func (c checker) port(field string, port int) {
	if port < 1 || port > 65535 {
		c.fail(field, "", "port %d is out of valid range (1-65535)", port)
	}
}

func (c checker) nonNegative(field string, negative bool) {
	if negative {
		c.fail(field, "", "%s cannot be negative", field[strings.LastIndex(field, ".")+1:])
	}
}

func (d *DatabaseConfig) validate(v checker) {
	if _, err := sqlutil.ParseDialect(d.Driver); err != nil {
		v.fail("database.driver", "valid values are: mysql, postgres", "%s", err.Error())
	}
	if d.ConnectionString == "" {
		v.port("database.port", d.Port)
	}

	d.TLS.validate(v)

	v.nonNegative("database.pool.max_open", d.Pool.MaxOpen < 0)
	v.nonNegative("database.pool.max_idle", d.Pool.MaxIdle < 0)
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		v.warn("database.pool.max_idle", "idle connections will be limited to max_open",
			"max_idle (%d) is greater than max_open (%d)", d.Pool.MaxIdle, d.Pool.MaxOpen)
	}

	v.nonNegative("database.connection_timeout", d.ConnectionTimeout < 0)
	v.nonNegative("database.connection_retry_interval", d.ConnectionRetryInterval < 0)
	v.nonNegative("database.query_timeout", d.QueryTimeout < 0)
	if d.ConnectionTimeout > 0 {
		switch {
		case d.ConnectionRetryInterval == 0:
			v.fail("database.connection_retry_interval",
				"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
				"connection_retry_interval must be greater than 0 when connection_timeout is set")
		case d.ConnectionRetryInterval > d.ConnectionTimeout:
			v.warn("database.connection_retry_interval", "only one connection attempt will be made",
				"connection_retry_interval is greater than connection_timeout")
		}
	}

	name, _, err := resolveEffectiveDatabaseName(d.Driver, d.Database, d.ConnectionString)
	if err != nil {
		v.databaseNameError(err)
		return
	}
	d.Database = name
}

// databaseNameError files a name resolution failure under the key the
// operator has to change.
func (c checker) databaseNameError(err error) {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "database.dsn"):
		c.fail("database.dsn", "set a valid DSN for the configured driver in database.dsn/database.dsn_file", "%s", msg)
	case strings.Contains(msg, "mismatch"):
		c.fail("database.database", "either remove database.database or set it to match the DSN database", "%s", msg)
	default:
		c.fail("database.database", "set database.database or include a /database in database.dsn/database.dsn_file", "%s", msg)
	}
}

func (t *DatabaseTLSConfig) validate(v checker) {
	v.oneOf("database.tls.mode", "TLS mode", t.Mode, "", "off", "skip-verify", "verify-ca", "verify-full")

	verifying := t.Mode == "verify-ca" || t.Mode == "verify-full"
	if verifying && t.resolveCAFile() == "" {
		v.fail("database.tls.ca_file", "set ca_file or ca_file_env to specify the CA certificate",
			"CA file is required for %s mode", t.Mode)
	}
	if (t.resolveCertFile() == "") != (t.resolveKeyFile() == "") {
		v.fail("database.tls.cert_file", "provide both cert_file and key_file, or neither",
			"both cert_file and key_file must be specified for client certificate authentication")
	}
	if t.Mode == "skip-verify" {
		v.warn("database.tls.mode", "use verify-ca or verify-full in production",
			"skip-verify mode does not verify server certificates")
	}
}

func (s *ServerConfig) validate(v checker) {
	v.port("server.port", s.Port)

	if s.MaxBodyBytes <= 0 {
		v.fail("server.max_body_bytes", "set a positive byte limit such as 1048576",
			"max_body_bytes must be greater than 0")
	}
	v.nonNegative("server.health_check_timeout", s.HealthCheckTimeout < 0)

	s.validateRateLimit(v)
	s.validateCORS(v)

	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			v.fail("server.auth.oidc_issuer_url", "", "issuer URL is required when OIDC is enabled")
		}
		if s.Auth.OIDCAudience == "" {
			v.fail("server.auth.oidc_audience", "", "audience is required when OIDC is enabled")
		}
	}

	v.oneOf("server.tls_mode", "TLS mode", s.TLSMode, "", "off", "file")
	if s.TLSMode == "file" {
		if s.TLSCertFile == "" {
			v.fail("server.tls_cert_file", "", "TLS cert file required when tls_mode is 'file'")
		}
		if s.TLSKeyFile == "" {
			v.fail("server.tls_key_file", "", "TLS key file required when tls_mode is 'file'")
		}
	}
}

func (s *ServerConfig) validateRateLimit(v checker) {
	if !s.RateLimitEnabled {
		if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
			v.warn("server.rate_limit_enabled", "enable server.rate_limit_enabled to apply rate limits",
				"rate limit values are set but rate limiting is disabled")
		}
		return
	}
	if s.RateLimitRPS <= 0 {
		v.fail("server.rate_limit_rps", "", "rate_limit_rps must be greater than 0 when rate limiting is enabled")
	}
	if s.RateLimitBurst <= 0 {
		v.fail("server.rate_limit_burst", "", "rate_limit_burst must be greater than 0 when rate limiting is enabled")
	}
}

func (s *ServerConfig) validateCORS(v checker) {
	if !s.CORSEnabled {
		return
	}
	const field = "server.cors_allowed_origins"
	if len(s.CORSAllowedOrigins) == 0 {
		v.fail(field, "set cors_allowed_origins or disable CORS", "CORS enabled but no allowed origins configured")
		return
	}

	wildcard, plainHTTPOnly := false, true
	for _, origin := range s.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			wildcard = true
		}
		if !strings.HasPrefix(origin, "http://") {
			plainHTTPOnly = false
		}
	}

	if wildcard {
		if s.CORSAllowCredentials {
			v.fail(field, "use specific origins with credentials, or wildcard without credentials",
				"wildcard origin (*) cannot be used with credentials")
		} else {
			v.warn(field, "use specific origins in production", "CORS wildcard origin enabled")
		}
	}
	if plainHTTPOnly && s.TLSMode == "file" {
		v.warn(field, "use https:// origins when serving over TLS",
			"CORS allowed origins are http:// only while TLS is enabled")
	}
}

func (o *ObservabilityConfig) validate(v checker) {
	v.oneOf("observability.logging.level", "log level", o.Logging.Level, "debug", "info", "warn", "error")
	v.oneOf("observability.logging.format", "log format", o.Logging.Format, "json", "text")

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		v.fail("observability.trace_sample_ratio", "use a value between 0 and 1",
			"trace_sample_ratio %g is out of range", o.TraceSampleRatio)
	}

	o.OTLP.validate(v, "observability.otlp")
	if o.Traces != nil {
		o.Traces.validate(v, "observability.traces")
	}
	if o.Logs != nil {
		o.Logs.validate(v, "observability.logs")
	}
	if o.Metrics != nil {
		o.Metrics.validate(v, "observability.metrics")
	}
}

func (o *OTLPConfig) validate(v checker, prefix string) {
	v.oneOf(prefix+".protocol", "OTLP protocol", o.Protocol, "", "grpc", "http/protobuf")
	if o.Protocol == "http/protobuf" {
		if err := checkOTLPEndpoint(o.Endpoint); err != nil {
			v.fail(prefix+".endpoint", "use host:port or a full URL",
				"invalid OTLP endpoint %q for http/protobuf: %v", o.Endpoint, err)
		}
	}
	v.oneOf(prefix+".compression", "OTLP compression", o.Compression, "", "none", "gzip")
	v.nonNegative(prefix+".retry_max_attempts", o.RetryMaxAttempts < 0)
}

func checkOTLPEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("endpoint is empty")
	}
	if !strings.Contains(endpoint, "://") {
		_, _, err := net.SplitHostPort(endpoint)
		return err
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
