package planner

import (
	"fmt"
	"strings"

	"fleet-reports/internal/schema"
	"fleet-reports/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// MaxRows caps every report result.
const MaxRows = 200

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// ReportPlan is a fully resolved report: output columns, the joins they need
// and the SQL that produces them.
type ReportPlan struct {
	Base        schema.Entity
	Projections []Projection
	Joins       []schema.JoinRule
	Query       SQLQuery
}

// Labels returns the output labels in request order. Repeated paths repeat
// their label.
func (p *ReportPlan) Labels() []string {
	labels := make([]string, len(p.Projections))
	for i, proj := range p.Projections {
		labels[i] = proj.Label
	}
	return labels
}

// PlanReport resolves every requested path against the registry and builds a
// single SELECT rooted at the base entity. Paths are resolved in request order
// and any failing path aborts the whole plan.
func PlanReport(reg *schema.Registry, dialect sqlutil.Dialect, baseName string, paths []string) (*ReportPlan, error) {
	base, ok := schema.ParseEntity(baseName)
	if !ok {
		return nil, &PathError{Kind: ErrUnknownEntity, Entity: strings.ToUpper(strings.TrimSpace(baseName))}
	}
	if len(paths) == 0 {
		return nil, &PathError{Kind: ErrNoColumns, Entity: base.String()}
	}

	acc := NewJoinAccumulator(reg.Whitelist(), base)
	projections := make([]Projection, 0, len(paths))
	bound := make(map[string]Projection, len(paths))

	for _, raw := range paths {
		proj, err := ResolvePath(reg, acc, raw)
		if err != nil {
			return nil, err
		}
		if prev, exists := bound[proj.Label]; exists && (prev.Entity != proj.Entity || prev.Column.Name != proj.Column.Name) {
			return nil, &PathError{Kind: ErrInvalidPath, Path: raw, Entity: base.String()}
		}
		bound[proj.Label] = proj
		projections = append(projections, proj)
	}

	joins := acc.Joins()
	query, err := buildReportSQL(dialect, base, projections, joins)
	if err != nil {
		return nil, fmt.Errorf("failed to build report SQL: %w", err)
	}

	return &ReportPlan{
		Base:        base,
		Projections: projections,
		Joins:       joins,
		Query:       query,
	}, nil
}

func buildReportSQL(dialect sqlutil.Dialect, base schema.Entity, projections []Projection, joins []schema.JoinRule) (SQLQuery, error) {
	columns := make([]string, len(projections))
	for i, proj := range projections {
		columns[i] = fmt.Sprintf("%s AS %s",
			dialect.QualifiedColumn(proj.Entity.String(), proj.Column.Name),
			dialect.QuoteIdentifier(proj.Label),
		)
	}

	builder := sq.Select(columns...).From(dialect.QuoteIdentifier(base.String()))
	for _, join := range joins {
		clause := fmt.Sprintf("%s ON %s = %s",
			dialect.QuoteIdentifier(join.To.String()),
			dialect.QualifiedColumn(join.From.String(), join.FromColumn),
			dialect.QualifiedColumn(join.To.String(), join.ToColumn),
		)
		switch join.Kind {
		case schema.JoinInner:
			builder = builder.Join(clause)
		case schema.JoinLeftOuter:
			builder = builder.LeftJoin(clause)
		default:
			return SQLQuery{}, fmt.Errorf("unsupported join kind %s for %s", join.Kind, join.Pair())
		}
	}

	query, args, err := builder.
		Limit(MaxRows).
		PlaceholderFormat(dialect.Placeholder()).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
