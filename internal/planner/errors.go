package planner

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by report planning. Use errors.Is to classify.
var (
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrEmptyPath      = errors.New("empty column path")
	ErrInvalidPath    = errors.New("invalid relationship path")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrJoinNotAllowed = errors.New("join not allowed")
	ErrNoColumns      = errors.New("no columns requested")
)

// PathError describes why a report request could not be planned.
type PathError struct {
	Kind error
	// Path is the column path as sent by the client.
	Path string
	// Entity is the entity being inspected when planning failed.
	Entity string
	// Segment is the offending path segment, if any.
	Segment string
	// Target is the entity a rejected join was heading to.
	Target string
	// Relationships lists the hops Entity does offer, for ErrInvalidPath.
	Relationships []string
}

func (e *PathError) Error() string {
	switch e.Kind {
	case ErrUnknownEntity:
		return fmt.Sprintf("table not allowed: %s", e.Entity)
	case ErrEmptyPath:
		return fmt.Sprintf("empty or invalid column %q", e.Path)
	case ErrUnknownColumn:
		return fmt.Sprintf("invalid column: %s.%s", e.Entity, e.Segment)
	case ErrInvalidPath:
		if e.Segment == "" {
			return fmt.Sprintf("invalid path %q", e.Path)
		}
		msg := fmt.Sprintf("invalid path: no relationship from %s to %s", e.Entity, e.Segment)
		if len(e.Relationships) > 0 {
			msg += " (valid: " + strings.Join(e.Relationships, ", ") + ")"
		}
		return msg
	case ErrJoinNotAllowed:
		return fmt.Sprintf("no join allowed between %s and %s", e.Entity, e.Target)
	case ErrNoColumns:
		return "at least one column is required"
	default:
		return fmt.Sprintf("report planning failed for %q", e.Path)
	}
}

func (e *PathError) Unwrap() error {
	return e.Kind
}

// IsPlanningError reports whether err belongs to the client-correctable
// planning error kinds.
func IsPlanningError(err error) bool {
	var pathErr *PathError
	return errors.As(err, &pathErr)
}
