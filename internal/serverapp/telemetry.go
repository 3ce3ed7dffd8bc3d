package serverapp

import (
	"log/slog"

	"fleet-reports/internal/config"
	"fleet-reports/internal/logging"
	"fleet-reports/internal/observability"
)

// InitLogger builds the process logger and installs it as the slog default.
// With log export enabled the logger is rebuilt on top of an OTLP provider,
// which the caller must shut down.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	obs := cfg.Observability
	loggerCfg := logging.Config{
		Level:       obs.Logging.Level,
		Format:      obs.Logging.Format,
		ServiceName: obs.ServiceName,
	}
	logger := installLogger(loggerCfg)
	if !obs.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	signal := obs.GetLogsConfig()
	logger.Info("exporting logs over OTLP",
		slog.String("otlp_endpoint", signal.Endpoint),
		slog.String("otlp_protocol", signal.Protocol),
		slog.Bool("insecure", signal.Insecure),
	)
	provider, err := observability.InitLoggerProvider(exporterConfig(cfg, signal))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = provider.Provider()
	return installLogger(loggerCfg), provider, nil
}

func installLogger(cfg logging.Config) *logging.Logger {
	logger := logging.NewLogger(cfg)
	slog.SetDefault(logger.Logger)
	return logger
}

// exporterConfig pairs the service identity with one signal's resolved OTLP settings.
func exporterConfig(cfg *config.Config, signal config.OTLPConfig) observability.Config {
	obs := cfg.Observability
	return observability.Config{
		ServiceName:      obs.ServiceName,
		ServiceVersion:   obs.ServiceVersion,
		Environment:      obs.Environment,
		TraceSampleRatio: obs.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          signal.Endpoint,
			Protocol:          signal.Protocol,
			Insecure:          signal.Insecure,
			TLSCertFile:       signal.TLSCertFile,
			TLSClientCertFile: signal.TLSClientCertFile,
			TLSClientKeyFile:  signal.TLSClientKeyFile,
			Headers:           signal.Headers,
			Timeout:           signal.Timeout,
			Compression:       signal.Compression,
			RetryEnabled:      signal.RetryEnabled,
			RetryMaxAttempts:  signal.RetryMaxAttempts,
		},
	}
}

// instruments groups the meter provider with the instruments built on it.
// Every field is nil when metrics are disabled; the recorders accept nil.
type instruments struct {
	provider *observability.MeterProvider
	reports  *observability.ReportMetrics
	security *observability.SecurityMetrics
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (instruments, error) {
	if !cfg.Observability.MetricsEnabled {
		return instruments{}, nil
	}

	provider, err := observability.InitMeterProvider(exporterConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return instruments{}, err
	}
	reports, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return instruments{}, err
	}
	security, err := observability.InitSecurityMetrics()
	if err != nil {
		return instruments{}, err
	}

	logger.Info("metrics enabled",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)
	return instruments{provider: provider, reports: reports, security: security}, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	signal := cfg.Observability.GetTracesConfig()
	provider, err := observability.InitTracerProvider(exporterConfig(cfg, signal))
	if err != nil {
		return nil, err
	}

	logger.Info("tracing enabled",
		slog.String("otlp_endpoint", signal.Endpoint),
		slog.String("otlp_protocol", signal.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return provider, nil
}
