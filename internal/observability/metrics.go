package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fleet-reports"

// ReportMetrics instruments the report endpoint. A nil *ReportMetrics
// records nothing.
type ReportMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	joinCount       metric.Int64Histogram
	columnCount     metric.Int64Histogram
	resultRows      metric.Int64Histogram
}

// instrumentSet creates instruments on one meter and keeps the first error,
// so a constructor can declare every instrument and check once.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

func (s *instrumentSet) keep(name string, err error) {
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
}

func (s *instrumentSet) counter(name, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc))
	s.keep(name, err)
	return c
}

func (s *instrumentSet) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	s.keep(name, err)
	return c
}

func (s *instrumentSet) histogram(name, desc string) metric.Int64Histogram {
	h, err := s.meter.Int64Histogram(name, metric.WithDescription(desc))
	s.keep(name, err)
	return h
}

func (s *instrumentSet) durationMillis(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	s.keep(name, err)
	return h
}

// InitReportMetrics creates the report instruments on the global meter provider.
func InitReportMetrics() (*ReportMetrics, error) {
	return newReportMetrics(otel.Meter(meterName))
}

func newReportMetrics(meter metric.Meter) (*ReportMetrics, error) {
	set := &instrumentSet{meter: meter}
	m := &ReportMetrics{
		requestDuration: set.durationMillis("report.request.duration", "Duration of report requests in milliseconds"),
		requestCounter:  set.counter("report.requests.total", "Total number of report requests"),
		errorCounter:    set.counter("report.errors.total", "Total number of failed report requests by error kind"),
		activeRequests:  set.upDown("report.requests.active", "Number of report requests in flight"),
		joinCount:       set.histogram("report.plan.joins", "Number of joins in a planned report"),
		columnCount:     set.histogram("report.plan.columns", "Number of output columns in a planned report"),
		resultRows:      set.histogram("report.result.rows", "Number of rows returned by a report"),
	}
	if set.err != nil {
		return nil, set.err
	}
	return m, nil
}

// RecordRequest records one finished report request. errorKind is empty on
// success.
func (m *ReportMetrics) RecordRequest(ctx context.Context, duration time.Duration, baseEntity, errorKind string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("base_entity", baseEntity),
		attribute.Bool("has_errors", errorKind != ""),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)

	if errorKind != "" {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("base_entity", baseEntity),
			attribute.String("error_kind", errorKind),
		))
	}
}

// RecordPlan records the number of output columns and joins of a plan.
func (m *ReportMetrics) RecordPlan(ctx context.Context, baseEntity string, columns, joins int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("base_entity", baseEntity))
	m.columnCount.Record(ctx, int64(columns), attrs)
	m.joinCount.Record(ctx, int64(joins), attrs)
}

func (m *ReportMetrics) RecordResultRows(ctx context.Context, count int, baseEntity string) {
	if m == nil {
		return
	}
	m.resultRows.Record(ctx, int64(count), metric.WithAttributes(attribute.String("base_entity", baseEntity)))
}

func (m *ReportMetrics) IncrementActiveRequests(ctx context.Context) {
	if m != nil {
		m.activeRequests.Add(ctx, 1)
	}
}

func (m *ReportMetrics) DecrementActiveRequests(ctx context.Context) {
	if m != nil {
		m.activeRequests.Add(ctx, -1)
	}
}

// InitMetrics creates the report instruments and logs that they are ready.
func InitMetrics(logger *slog.Logger) (*ReportMetrics, error) {
	metrics, err := InitReportMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize report metrics: %w", err)
	}
	logger.Info("custom report metrics initialized")
	return metrics, nil
}
