package schema

import (
	"fmt"
	"strings"
)

// Registry is the immutable reporting model: column sets, join whitelist and
// relationship aliases. It is safe for concurrent use.
type Registry struct {
	columns   map[Entity]*columnSet
	whitelist *Whitelist
	aliases   *Aliases
}

// NewRegistry validates and assembles a registry. Every declared entity must
// have a table definition.
func NewRegistry(tables []Table, rules []JoinRule, aliases []Alias) (*Registry, error) {
	columns := make(map[Entity]*columnSet, len(tables))
	for _, table := range tables {
		if !table.Entity.Valid() {
			return nil, fmt.Errorf("table definition for unknown entity %d", int(table.Entity))
		}
		if _, exists := columns[table.Entity]; exists {
			return nil, fmt.Errorf("entity %s declared twice", table.Entity)
		}
		set, err := newColumnSet(table.Entity, table.Columns)
		if err != nil {
			return nil, err
		}
		columns[table.Entity] = set
	}
	for _, e := range AllEntities() {
		if _, ok := columns[e]; !ok {
			return nil, fmt.Errorf("entity %s has no table definition", e)
		}
	}

	wl, err := newWhitelist(columns, rules)
	if err != nil {
		return nil, fmt.Errorf("invalid join whitelist: %w", err)
	}
	al, err := newAliases(wl, aliases)
	if err != nil {
		return nil, fmt.Errorf("invalid relationship aliases: %w", err)
	}

	return &Registry{columns: columns, whitelist: wl, aliases: al}, nil
}

// Default returns the registry for the CLIENTES/VEICULOS/MOTORISTAS/PASSAGENS model.
func Default() (*Registry, error) {
	return NewRegistry(defaultTables(), defaultJoinRules(), defaultAliases())
}

// Columns returns a copy of the entity's columns in declaration order.
func (r *Registry) Columns(e Entity) []Column {
	set, ok := r.columns[e]
	if !ok {
		return nil
	}
	out := make([]Column, len(set.ordered))
	copy(out, set.ordered)
	return out
}

// Column looks up a column by name. The name is normalised to uppercase.
func (r *Registry) Column(e Entity, name string) (Column, bool) {
	set, ok := r.columns[e]
	if !ok {
		return Column{}, false
	}
	return set.lookup(strings.ToUpper(strings.TrimSpace(name)))
}

// HasColumn reports whether the entity declares the column.
func (r *Registry) HasColumn(e Entity, name string) bool {
	_, ok := r.Column(e, name)
	return ok
}

// Whitelist returns the join whitelist.
func (r *Registry) Whitelist() *Whitelist {
	return r.whitelist
}

// Aliases returns the relationship alias map.
func (r *Registry) Aliases() *Aliases {
	return r.aliases
}
