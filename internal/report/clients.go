package report

import (
	"context"
	"database/sql"

	"fleet-reports/internal/observability"
	"fleet-reports/internal/schema"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// ListClients returns the id, CNPJ, name and e-mail of every client ordered by id.
func (s *Service) ListClients(ctx context.Context) (list *ClientList, err error) {
	ctx, span := observability.StartSpan(ctx, "report.list_clients",
		attribute.String("db.system", string(s.dialect)),
	)
	defer func() { observability.FinishSpan(span, err) }()

	if s.executor == nil {
		return nil, &ExecutionError{Stage: "query", Err: sql.ErrConnDone}
	}

	table := schema.Clientes.String()
	query, args, err := sq.Select(
		s.dialect.QuoteIdentifier("ID"),
		s.dialect.QuoteIdentifier("CNPJ"),
		s.dialect.QuoteIdentifier("NOME"),
		s.dialect.QuoteIdentifier("EMAIL"),
	).
		From(s.dialect.QuoteIdentifier(table)).
		OrderBy(s.dialect.QuoteIdentifier("ID")).
		PlaceholderFormat(s.dialect.Placeholder()).
		ToSql()
	if err != nil {
		return nil, &ExecutionError{Stage: "build", Err: err}
	}

	rows, err := s.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ExecutionError{Stage: "query", Err: err}
	}
	defer rows.Close()

	items := make([]ClientSummary, 0)
	for rows.Next() {
		var (
			c     ClientSummary
			email sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CNPJ, &c.Nome, &email); err != nil {
			return nil, &ExecutionError{Stage: "scan", Err: err}
		}
		c.Email = email.String
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Stage: "iterate", Err: err}
	}

	span.SetAttributes(attribute.Int("report.rows", len(items)))
	return &ClientList{Total: len(items), Items: items}, nil
}
