package report

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"fleet-reports/internal/schema"
)

// scanTarget returns a nullable scan destination suited to the column type.
func scanTarget(t schema.ColumnType) (any, error) {
	switch t {
	case schema.TypeInteger:
		return new(sql.NullInt64), nil
	case schema.TypeString, schema.TypeDecimal:
		return new(sql.NullString), nil
	case schema.TypeTimestamp:
		return new(sql.NullTime), nil
	default:
		return nil, fmt.Errorf("unsupported column type %s", t)
	}
}

// reportValue converts a filled scan destination into its JSON value.
// NULL becomes nil, decimals keep their exact textual form and timestamps
// are reported in UTC.
func reportValue(t schema.ColumnType, dest any) any {
	switch v := dest.(type) {
	case *sql.NullInt64:
		if !v.Valid {
			return nil
		}
		return v.Int64
	case *sql.NullString:
		if !v.Valid {
			return nil
		}
		if t == schema.TypeDecimal {
			return json.Number(v.String)
		}
		return v.String
	case *sql.NullTime:
		if !v.Valid {
			return nil
		}
		return v.Time.UTC()
	default:
		return nil
	}
}
