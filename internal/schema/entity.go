// Package schema describes the static reporting model: the four tables a report
// may start from, their columns, the joins that are allowed between them and the
// relationship names clients use to walk from one table to another.
//
// Everything in this package is built once at startup and never mutated.
package schema

import "strings"

// Entity identifies one of the reportable tables.
type Entity int

const (
	Clientes Entity = iota + 1
	Veiculos
	Motoristas
	Passagens
)

var entityNames = [...]string{
	Clientes:   "CLIENTES",
	Veiculos:   "VEICULOS",
	Motoristas: "MOTORISTAS",
	Passagens:  "PASSAGENS",
}

// String returns the canonical (uppercase) table name.
func (e Entity) String() string {
	if !e.Valid() {
		return "UNKNOWN"
	}
	return entityNames[e]
}

// Valid reports whether e is one of the declared entities.
func (e Entity) Valid() bool {
	return e >= Clientes && e <= Passagens
}

// AllEntities returns every entity in declaration order.
func AllEntities() []Entity {
	return []Entity{Clientes, Veiculos, Motoristas, Passagens}
}

// ParseEntity maps a table name to its entity. Matching ignores case and
// surrounding whitespace.
func ParseEntity(name string) (Entity, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for _, e := range AllEntities() {
		if entityNames[e] == normalized {
			return e, true
		}
	}
	return 0, false
}
