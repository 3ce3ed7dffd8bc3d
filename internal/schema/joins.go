package schema

import (
	"fmt"
)

// JoinKind selects the SQL join flavour for a whitelisted edge.
type JoinKind int

const (
	JoinInner JoinKind = iota + 1
	JoinLeftOuter
)

func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "inner"
	case JoinLeftOuter:
		return "left"
	default:
		return "unknown"
	}
}

// JoinRule is a permitted directed join. The join condition is always
// From.FromColumn = To.ToColumn.
type JoinRule struct {
	From       Entity
	To         Entity
	Kind       JoinKind
	FromColumn string
	ToColumn   string
}

// Pair is an ordered (from, to) entity pair.
type Pair struct {
	From Entity
	To   Entity
}

func (p Pair) String() string {
	return p.From.String() + "->" + p.To.String()
}

// Pair returns the ordered pair the rule applies to.
func (r JoinRule) Pair() Pair {
	return Pair{From: r.From, To: r.To}
}

// Whitelist is the closed set of permitted joins keyed by ordered pair.
// Lookups never imply the reverse direction.
type Whitelist struct {
	byPair map[Pair]JoinRule
}

// newWhitelist validates rules against the given column sets. Duplicate ordered
// pairs are rejected, as are two rules joining into the same target entity,
// because the generated SQL references every joined table by its bare name.
func newWhitelist(columns map[Entity]*columnSet, rules []JoinRule) (*Whitelist, error) {
	wl := &Whitelist{byPair: make(map[Pair]JoinRule, len(rules))}
	targets := make(map[Entity]Pair, len(rules))

	for _, rule := range rules {
		pair := rule.Pair()
		if !rule.From.Valid() || !rule.To.Valid() {
			return nil, fmt.Errorf("join rule %s references an unknown entity", pair)
		}
		if rule.From == rule.To {
			return nil, fmt.Errorf("join rule %s joins an entity to itself", pair)
		}
		if rule.Kind != JoinInner && rule.Kind != JoinLeftOuter {
			return nil, fmt.Errorf("join rule %s has an invalid kind", pair)
		}
		if _, exists := wl.byPair[pair]; exists {
			return nil, fmt.Errorf("duplicate join rule for %s", pair)
		}
		if prev, exists := targets[rule.To]; exists {
			return nil, fmt.Errorf("join rules %s and %s both target %s", prev, pair, rule.To)
		}
		if columns[rule.From] == nil || columns[rule.To] == nil {
			return nil, fmt.Errorf("join rule %s references an entity without columns", pair)
		}
		if _, ok := columns[rule.From].lookup(rule.FromColumn); !ok {
			return nil, fmt.Errorf("join rule %s: unknown column %s.%s", pair, rule.From, rule.FromColumn)
		}
		if _, ok := columns[rule.To].lookup(rule.ToColumn); !ok {
			return nil, fmt.Errorf("join rule %s: unknown column %s.%s", pair, rule.To, rule.ToColumn)
		}

		targets[rule.To] = pair
		wl.byPair[pair] = rule
	}

	return wl, nil
}

// Lookup returns the rule for the exact ordered pair.
func (w *Whitelist) Lookup(from, to Entity) (JoinRule, bool) {
	rule, ok := w.byPair[Pair{From: from, To: to}]
	return rule, ok
}
