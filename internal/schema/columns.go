package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the coarse value category of a column. It drives value
// normalisation when rows are read and cell typing in spreadsheet exports.
type ColumnType int

const (
	TypeInteger ColumnType = iota + 1
	TypeString
	TypeDecimal
	TypeTimestamp
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeString:
		return "string"
	case TypeDecimal:
		return "decimal"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Column describes one column of an entity.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Table binds an entity to its ordered column list.
type Table struct {
	Entity  Entity
	Columns []Column
}

// columnSet keeps declaration order for listing and an index for lookups.
type columnSet struct {
	ordered []Column
	byName  map[string]int
}

func newColumnSet(entity Entity, columns []Column) (*columnSet, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("entity %s has no columns", entity)
	}
	set := &columnSet{
		ordered: make([]Column, 0, len(columns)),
		byName:  make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		name := strings.ToUpper(strings.TrimSpace(col.Name))
		if name == "" {
			return nil, fmt.Errorf("entity %s has a column with an empty name", entity)
		}
		if strings.Contains(name, ".") {
			return nil, fmt.Errorf("column %s.%s contains a path separator", entity, name)
		}
		if _, exists := set.byName[name]; exists {
			return nil, fmt.Errorf("column %s.%s declared twice", entity, name)
		}
		col.Name = name
		set.byName[name] = len(set.ordered)
		set.ordered = append(set.ordered, col)
	}
	return set, nil
}

func (s *columnSet) lookup(name string) (Column, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return Column{}, false
	}
	return s.ordered[idx], true
}
