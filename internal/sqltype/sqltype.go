// Package sqltype maps catalog SQL type names onto the registry's column
// categories. It understands MySQL COLUMN_TYPE values and PostgreSQL
// information_schema data_type values.
package sqltype

import (
	"strings"

	"fleet-reports/internal/schema"
)

// Classify returns the column category for a SQL type. The input is
// case-insensitive; size specifiers like (12,3) and modifiers like UNSIGNED
// are ignored. ok is false for types no registry category covers.
func Classify(sqlType string) (schema.ColumnType, bool) {
	name := strings.ToLower(strings.TrimSpace(sqlType))
	if idx := strings.Index(name, "("); idx != -1 {
		name = strings.TrimSpace(name[:idx])
	}

	// Multi-word PostgreSQL names.
	switch {
	case strings.HasPrefix(name, "character"):
		return schema.TypeString, true
	case strings.HasPrefix(name, "timestamp"):
		return schema.TypeTimestamp, true
	case name == "double precision":
		return schema.TypeDecimal, true
	}

	if fields := strings.Fields(name); len(fields) > 0 {
		name = fields[0]
	}

	switch name {
	case "tinyint", "smallint", "mediumint", "int", "integer",
		"bigint", "serial", "bigserial", "int2", "int4", "int8":
		return schema.TypeInteger, true
	case "decimal", "numeric", "float", "double", "real":
		return schema.TypeDecimal, true
	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext",
		"enum", "bpchar":
		return schema.TypeString, true
	case "datetime", "date":
		return schema.TypeTimestamp, true
	default:
		return 0, false
	}
}

// Compatible reports whether a catalog type can back a registry column of
// type want. Unknown catalog types are treated as compatible.
func Compatible(sqlType string, want schema.ColumnType) bool {
	got, ok := Classify(sqlType)
	return !ok || got == want
}
