package planner

import (
	"fleet-reports/internal/schema"
)

// JoinAccumulator collects the joins a report needs while its paths are
// resolved. Each ordered pair is applied at most once and joins keep the order
// in which they were first needed.
type JoinAccumulator struct {
	whitelist *schema.Whitelist
	base      schema.Entity
	joins     []schema.JoinRule
	applied   map[schema.Pair]struct{}
	present   map[schema.Entity]struct{}
}

// NewJoinAccumulator starts an empty join list for a report rooted at base.
func NewJoinAccumulator(wl *schema.Whitelist, base schema.Entity) *JoinAccumulator {
	return &JoinAccumulator{
		whitelist: wl,
		base:      base,
		applied:   make(map[schema.Pair]struct{}),
		present:   map[schema.Entity]struct{}{base: {}},
	}
}

// Ensure records the join from -> to unless it is already applied.
// It fails with ErrJoinNotAllowed when the pair is not whitelisted or when the
// target table is already part of the FROM clause through another route.
func (a *JoinAccumulator) Ensure(from, to schema.Entity) error {
	pair := schema.Pair{From: from, To: to}
	if _, ok := a.applied[pair]; ok {
		return nil
	}

	rule, ok := a.whitelist.Lookup(from, to)
	if !ok {
		return &PathError{Kind: ErrJoinNotAllowed, Entity: from.String(), Target: to.String()}
	}
	if _, joined := a.present[to]; joined {
		return &PathError{Kind: ErrJoinNotAllowed, Entity: from.String(), Target: to.String()}
	}

	a.applied[pair] = struct{}{}
	a.present[to] = struct{}{}
	a.joins = append(a.joins, rule)
	return nil
}

// Joins returns the applied joins in first-need order.
func (a *JoinAccumulator) Joins() []schema.JoinRule {
	out := make([]schema.JoinRule, len(a.joins))
	copy(out, a.joins)
	return out
}

// Len returns the number of applied joins.
func (a *JoinAccumulator) Len() int {
	return len(a.joins)
}

// Base returns the entity the report is rooted at.
func (a *JoinAccumulator) Base() schema.Entity {
	return a.base
}
