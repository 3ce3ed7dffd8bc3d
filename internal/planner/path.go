package planner

import (
	"strings"

	"fleet-reports/internal/schema"
)

// Projection is one resolved output column of a report.
type Projection struct {
	// Label is the key the value is reported under.
	Label  string
	Entity schema.Entity
	Column schema.Column
	// Path is the normalised path segments the label was built from.
	Path []string
}

// SplitPath normalises a raw column path: segments are split on ".", trimmed,
// uppercased and empty segments are dropped.
func SplitPath(raw string) []string {
	parts := strings.Split(raw, ".")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// ResolvePath resolves one column path against the registry, recording the
// joins it walks through in acc.
//
// A single segment names a column of the base entity and is labelled
// "BASE.COLUMN". Longer paths walk relationship names from the base entity and
// end in a column of the last entity reached; they are labelled with the
// normalised path itself.
func ResolvePath(reg *schema.Registry, acc *JoinAccumulator, raw string) (Projection, error) {
	base := acc.Base()
	segments := SplitPath(raw)
	if len(segments) == 0 {
		return Projection{}, &PathError{Kind: ErrEmptyPath, Path: raw, Entity: base.String()}
	}

	if len(segments) == 1 {
		col, ok := reg.Column(base, segments[0])
		if !ok {
			return Projection{}, &PathError{Kind: ErrUnknownColumn, Path: raw, Entity: base.String(), Segment: segments[0]}
		}
		return Projection{
			Label:  base.String() + "." + col.Name,
			Entity: base,
			Column: col,
			Path:   segments,
		}, nil
	}

	current := base
	hops := segments[:len(segments)-1]
	for _, hop := range hops {
		next, ok := reg.Aliases().Resolve(current, hop)
		if !ok {
			return Projection{}, &PathError{
				Kind:          ErrInvalidPath,
				Path:          raw,
				Entity:        current.String(),
				Segment:       hop,
				Relationships: reg.Aliases().Names(current),
			}
		}
		if err := acc.Ensure(current, next); err != nil {
			if pathErr, ok := err.(*PathError); ok {
				pathErr.Path = raw
				pathErr.Segment = hop
			}
			return Projection{}, err
		}
		current = next
	}

	last := segments[len(segments)-1]
	col, ok := reg.Column(current, last)
	if !ok {
		return Projection{}, &PathError{Kind: ErrUnknownColumn, Path: raw, Entity: current.String(), Segment: last}
	}

	return Projection{
		Label:  strings.Join(segments, "."),
		Entity: current,
		Column: col,
		Path:   segments,
	}, nil
}
