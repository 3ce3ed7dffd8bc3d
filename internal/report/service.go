// Package report runs planned reports against the database and shapes the
// rows into API payloads.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fleet-reports/internal/dbexec"
	"fleet-reports/internal/logging"
	"fleet-reports/internal/observability"
	"fleet-reports/internal/planner"
	"fleet-reports/internal/schema"
	"fleet-reports/internal/sqlutil"

	"go.opentelemetry.io/otel/attribute"
)

// ErrExecution marks failures that happened after a report was planned.
// They are not caused by the request and carry no client-facing detail.
var ErrExecution = errors.New("report execution failed")

// ExecutionError wraps the driver error behind a failed report.
type ExecutionError struct {
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("report execution failed during %s: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// Config wires a Service to its collaborators.
type Config struct {
	Registry *schema.Registry
	Dialect  sqlutil.Dialect
	Executor dbexec.QueryExecutor
	Metrics  *observability.ReportMetrics
}

// Service plans and executes reports.
type Service struct {
	registry *schema.Registry
	dialect  sqlutil.Dialect
	executor dbexec.QueryExecutor
	metrics  *observability.ReportMetrics
}

// NewService creates a report service.
func NewService(cfg Config) *Service {
	return &Service{
		registry: cfg.Registry,
		dialect:  cfg.Dialect,
		executor: cfg.Executor,
		metrics:  cfg.Metrics,
	}
}

// Plan resolves a report request without running it.
func (s *Service) Plan(ctx context.Context, base string, paths []string) (*planner.ReportPlan, error) {
	_, span := observability.StartSpan(ctx, "report.plan",
		attribute.String("report.base", base),
		attribute.Int("report.columns.requested", len(paths)),
	)
	plan, err := planner.PlanReport(s.registry, s.dialect, base, paths)
	if err == nil {
		span.SetAttributes(attribute.Int("report.joins", len(plan.Joins)))
	}
	observability.FinishSpan(span, err)
	return plan, err
}

// Run plans the report and executes it. Planning errors are returned as
// *planner.PathError; anything that fails afterwards matches ErrExecution.
func (s *Service) Run(ctx context.Context, base string, paths []string) (result *Result, err error) {
	start := time.Now()
	s.metrics.IncrementActiveRequests(ctx)
	defer func() {
		s.metrics.DecrementActiveRequests(ctx)
		s.metrics.RecordRequest(ctx, time.Since(start), entityLabel(base), errorKind(err))
	}()

	plan, err := s.Plan(ctx, base, paths)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPlan(ctx, plan.Base.String(), len(plan.Projections), len(plan.Joins))

	result, err = s.Execute(ctx, plan)
	if err != nil {
		logging.FromContext(ctx).Error("report execution failed",
			slog.String("base_entity", plan.Base.String()),
			slog.Int("joins", len(plan.Joins)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	logging.FromContext(ctx).Debug("report executed",
		slog.String("base_entity", plan.Base.String()),
		slog.Int("columns", len(plan.Projections)),
		slog.Int("joins", len(plan.Joins)),
		slog.Int("rows", result.Count),
	)
	return result, nil
}

// Execute runs an already planned report. At most planner.MaxRows rows are
// read regardless of what the database returns.
func (s *Service) Execute(ctx context.Context, plan *planner.ReportPlan) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "report.execute",
		attribute.String("report.base", plan.Base.String()),
		attribute.String("db.system", string(s.dialect)),
	)

	result, err := s.execute(ctx, plan)
	if err == nil {
		span.SetAttributes(attribute.Int("report.rows", result.Count))
		s.metrics.RecordResultRows(ctx, result.Count, plan.Base.String())
	}
	observability.FinishSpan(span, err)
	return result, err
}

func (s *Service) execute(ctx context.Context, plan *planner.ReportPlan) (*Result, error) {
	if s.executor == nil {
		return nil, &ExecutionError{Stage: "query", Err: errors.New("no database executor configured")}
	}

	rows, err := s.executor.QueryContext(ctx, plan.Query.SQL, plan.Query.Args...)
	if err != nil {
		return nil, &ExecutionError{Stage: "query", Err: err}
	}
	defer rows.Close()

	labels := plan.Labels()
	items := make([]Row, 0)
	for len(items) < planner.MaxRows && rows.Next() {
		dest := make([]any, len(plan.Projections))
		for i, proj := range plan.Projections {
			target, err := scanTarget(proj.Column.Type)
			if err != nil {
				return nil, &ExecutionError{Stage: "scan", Err: err}
			}
			dest[i] = target
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &ExecutionError{Stage: "scan", Err: err}
		}

		values := make([]any, len(dest))
		for i, proj := range plan.Projections {
			values[i] = reportValue(proj.Column.Type, dest[i])
		}
		row, err := NewRow(labels, values)
		if err != nil {
			return nil, &ExecutionError{Stage: "scan", Err: err}
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Stage: "iterate", Err: err}
	}

	return &Result{
		BaseEntity: plan.Base.String(),
		Columns:    labels,
		Count:      len(items),
		Items:      items,
	}, nil
}

func entityLabel(name string) string {
	if entity, ok := schema.ParseEntity(name); ok {
		return entity.String()
	}
	return "unknown"
}

// errorKind maps an error to a low-cardinality metric label.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, planner.ErrUnknownEntity):
		return "unknown_entity"
	case errors.Is(err, planner.ErrEmptyPath):
		return "empty_path"
	case errors.Is(err, planner.ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, planner.ErrUnknownColumn):
		return "unknown_column"
	case errors.Is(err, planner.ErrJoinNotAllowed):
		return "join_not_allowed"
	case errors.Is(err, planner.ErrNoColumns):
		return "no_columns"
	default:
		return "execution"
	}
}
