package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fleet-reports/internal/config"
	"fleet-reports/internal/httpapi"
	"fleet-reports/internal/introspection"
	"fleet-reports/internal/logging"
	"fleet-reports/internal/middleware"
	"fleet-reports/internal/observability"
	"fleet-reports/internal/report"
	"fleet-reports/internal/tlscert"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func oidcAuthConfig(cfg *config.Config) middleware.OIDCAuthConfig {
	auth := cfg.Server.Auth
	return middleware.OIDCAuthConfig{
		Enabled:   auth.OIDCEnabled,
		IssuerURL: auth.OIDCIssuerURL,
		Audience:  auth.OIDCAudience,
		ClockSkew: auth.OIDCClockSkew,
		CAFile:    auth.OIDCCAFile,
	}
}

// buildAPIHandler assembles the report routes behind the per-request chain:
//
//	request -> logging -> OIDC auth -> report handler
func buildAPIHandler(cfg *config.Config, logger *logging.Logger, reports *report.Service, catalog *introspection.Catalog, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	routes := http.NewServeMux()
	httpapi.NewHandler(httpapi.Config{
		Reports:      reports,
		Catalog:      catalog,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}).Register(routes)

	var handler http.Handler = routes
	if cfg.Server.Auth.OIDCEnabled {
		auth, err := middleware.OIDCAuthMiddleware(oidcAuthConfig(cfg), logger, securityMetrics)
		if err != nil {
			return nil, err
		}
		handler = auth(handler)
	} else {
		logger.Warn("report endpoints are not authenticated; set server.auth.oidc_enabled to require bearer tokens")
	}

	return middleware.LoggingMiddleware(logger)(handler), nil
}

// buildRouter mounts health and metrics ahead of the report API so neither
// requires a bearer token.
func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, apiHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	mux.Handle("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

// wrapHTTPHandler applies the process-wide layers. Rate limiting is outermost
// so rejected requests never reach tracing or CORS handling.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler, securityMetrics *observability.SecurityMetrics) http.Handler {
	obs, srv := cfg.Observability, cfg.Server

	if obs.MetricsEnabled || obs.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	handler = middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          srv.CORSEnabled,
		AllowedOrigins:   srv.CORSAllowedOrigins,
		AllowedMethods:   srv.CORSAllowedMethods,
		AllowedHeaders:   srv.CORSAllowedHeaders,
		ExposeHeaders:    srv.CORSExposeHeaders,
		AllowCredentials: srv.CORSAllowCredentials,
		MaxAge:           srv.CORSMaxAge,
	})(handler)

	return middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Enabled: srv.RateLimitEnabled,
		RPS:     srv.RateLimitRPS,
		Burst:   srv.RateLimitBurst,
		OnReject: func(r *http.Request) {
			securityMetrics.RecordRateLimited(r.Context(), normalizeHTTPSpanRoute(r.URL.Path))
		},
	})(handler)
}

// httpRootSpanName is "<METHOD> <route template>".
func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute collapses table names so span and metric
// cardinality stays bounded.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/clientes", "/health", "/metrics":
		return rawPath
	}
	for _, route := range httpapi.Routes() {
		prefix, _, ok := strings.Cut(route, "{")
		if ok && strings.HasPrefix(rawPath, prefix) && len(rawPath) > len(prefix) {
			return route
		}
	}
	return "/*"
}

// buildServer assembles the HTTP server. The returned manager is nil when
// TLS is off.
func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, tlscert.Manager, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	manager, err := tlscert.NewManager(tlscert.Config{
		Mode:     tlscert.Mode(cfg.Server.TLSMode),
		CertFile: cfg.Server.TLSCertFile,
		KeyFile:  cfg.Server.TLSKeyFile,
	}, logger.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	if manager != nil {
		srv.TLSConfig = manager.TLSConfig()
		logger.Info("TLS enabled", slog.String("cert_source", manager.Description()))
	}
	return srv, manager, nil
}

// startServer serves srv in a goroutine. The returned channel receives at
// most one error and never receives http.ErrServerClosed.
func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	useTLS := srv.TLSConfig != nil

	attrs := []any{
		slog.String("address", serverAddr),
		slog.Bool("tls", useTLS),
		slog.Any("report_routes", httpapi.Routes()),
		slog.Bool("read_only", cfg.Database.ReadOnly),
		slog.Duration("query_timeout", cfg.Database.QueryTimeout),
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
	}
	if cfg.Server.RateLimitEnabled {
		attrs = append(attrs,
			slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
			slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
		)
	}
	logger.Info("server starting", attrs...)

	go func() {
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("listen on %s: %w", serverAddr, err)
		}
	}()
	return serverErrors
}

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// healthHandler reports database reachability. Driver errors are logged,
// never returned to the caller.
func healthHandler(db *sql.DB, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		status, body := http.StatusOK, healthStatus{Status: "healthy", Database: "ok"}
		if err := db.PingContext(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed",
				slog.String("check", "database"),
				slog.String("error", err.Error()),
			)
			status, body = http.StatusServiceUnavailable, healthStatus{Status: "unhealthy", Database: "failed"}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}
