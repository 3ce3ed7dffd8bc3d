// Package introspection reads live column metadata from the database catalog.
// It backs the column listing endpoint and the startup check that the
// configured schema registry matches the tables actually deployed.
package introspection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fleet-reports/internal/dbexec"
	"fleet-reports/internal/schema"
	"fleet-reports/internal/sqltype"
	"fleet-reports/internal/sqlutil"
)

// ErrTableNotFound is returned when the catalog has no columns for a table.
var ErrTableNotFound = errors.New("table not found")

// ColumnInfo describes one column as reported by the catalog.
type ColumnInfo struct {
	Name     string  `json:"nome"`
	Type     string  `json:"tipo"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

// Catalog queries information_schema for the configured database.
type Catalog struct {
	db           dbexec.QueryExecutor
	dialect      sqlutil.Dialect
	databaseName string
}

// NewCatalog creates a catalog reader. databaseName is only used by the MySQL
// dialect; PostgreSQL lookups use the connection's current schema.
func NewCatalog(db dbexec.QueryExecutor, dialect sqlutil.Dialect, databaseName string) *Catalog {
	return &Catalog{
		db:           db,
		dialect:      dialect,
		databaseName: databaseName,
	}
}

const mysqlColumnsQuery = `
		SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			IS_NULLABLE,
			COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

const postgresColumnsQuery = `
		SELECT
			column_name,
			data_type,
			is_nullable,
			column_default
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`

// Columns returns the catalog columns of an entity's table in ordinal order.
func (c *Catalog) Columns(ctx context.Context, entity schema.Entity) ([]ColumnInfo, error) {
	if !entity.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, entity)
	}
	tableName := entity.String()

	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", c.databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	var (
		rows dbexec.Rows
		err  error
	)
	if c.dialect == sqlutil.DialectPostgres {
		rows, err = c.db.QueryContext(ctx, postgresColumnsQuery, tableName)
	} else {
		rows, err = c.db.QueryContext(ctx, mysqlColumnsQuery, c.databaseName, tableName)
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	columns := []ColumnInfo{}
	for rows.Next() {
		var col ColumnInfo
		var isNullable string
		var columnDefault sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &isNullable, &columnDefault); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.Nullable = strings.EqualFold(isNullable, "YES")
		if columnDefault.Valid {
			def := columnDefault.String
			col.Default = &def
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if len(columns) == 0 {
		err := fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.columns", len(columns)))
	return columns, nil
}

// Mismatch is a registry column that the live catalog does not confirm.
type Mismatch struct {
	Entity schema.Entity
	Column string
	Reason string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s.%s: %s", m.Entity, m.Column, m.Reason)
}

// Verify compares every registry column against the catalog. It returns the
// mismatches found; an error is only returned when the catalog cannot be read.
func (c *Catalog) Verify(ctx context.Context, reg *schema.Registry) ([]Mismatch, error) {
	ctx, span := startSpan(ctx, "introspection.verify_registry")
	defer span.End()

	var mismatches []Mismatch
	for _, entity := range schema.AllEntities() {
		live, err := c.Columns(ctx, entity)
		if errors.Is(err, ErrTableNotFound) {
			mismatches = append(mismatches, Mismatch{Entity: entity, Column: "*", Reason: "table missing"})
			continue
		}
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to read columns for %s: %w", entity, err)
		}

		byName := make(map[string]ColumnInfo, len(live))
		for _, col := range live {
			byName[strings.ToUpper(col.Name)] = col
		}
		for _, col := range reg.Columns(entity) {
			info, ok := byName[col.Name]
			if !ok {
				mismatches = append(mismatches, Mismatch{Entity: entity, Column: col.Name, Reason: "column missing"})
				continue
			}
			if !sqltype.Compatible(info.Type, col.Type) {
				mismatches = append(mismatches, Mismatch{
					Entity: entity,
					Column: col.Name,
					Reason: fmt.Sprintf("type %s is not %s", info.Type, col.Type),
				})
			}
			if info.Nullable && !col.Nullable {
				mismatches = append(mismatches, Mismatch{Entity: entity, Column: col.Name, Reason: "nullable in database"})
			}
		}
	}

	span.SetAttributes(attribute.Int("introspection.mismatches", len(mismatches)))
	return mismatches, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("fleet-reports/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
