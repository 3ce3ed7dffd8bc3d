package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Alias names a relationship hop from one entity to another.
type Alias struct {
	From Entity
	Name string
	To   Entity
}

// Aliases maps (from entity, relationship name) to the target entity.
type Aliases struct {
	edges map[Entity]map[string]Entity
	wl    *Whitelist
}

func newAliases(wl *Whitelist, aliases []Alias) (*Aliases, error) {
	out := &Aliases{edges: make(map[Entity]map[string]Entity), wl: wl}
	for _, a := range aliases {
		name := strings.ToUpper(strings.TrimSpace(a.Name))
		if name == "" {
			return nil, fmt.Errorf("empty relationship name on %s", a.From)
		}
		if strings.Contains(name, ".") {
			return nil, fmt.Errorf("relationship name %q on %s contains a path separator", name, a.From)
		}
		if _, ok := wl.Lookup(a.From, a.To); !ok {
			return nil, fmt.Errorf("relationship %s.%s has no join rule to %s", a.From, name, a.To)
		}
		byName := out.edges[a.From]
		if byName == nil {
			byName = make(map[string]Entity)
			out.edges[a.From] = byName
		}
		if prev, exists := byName[name]; exists && prev != a.To {
			return nil, fmt.Errorf("relationship %s.%s is ambiguous (%s, %s)", a.From, name, prev, a.To)
		}
		byName[name] = a.To
	}
	return out, nil
}

// Resolve returns the entity reached from `from` through the named
// relationship. Names are expected in canonical uppercase form. A name with
// no alias is read as a table name and accepted when a join rule from
// `from` to that table exists.
func (a *Aliases) Resolve(from Entity, name string) (Entity, bool) {
	if to, ok := a.edges[from][name]; ok {
		return to, true
	}
	to, ok := ParseEntity(name)
	if !ok {
		return 0, false
	}
	if _, allowed := a.wl.Lookup(from, to); !allowed {
		return 0, false
	}
	return to, true
}

// Names returns the relationship names usable from an entity, sorted.
func (a *Aliases) Names(from Entity) []string {
	names := make([]string, 0, len(a.edges[from]))
	for name := range a.edges[from] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
