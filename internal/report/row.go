package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one report record. Values keep the order of the requested columns
// and a label may appear more than once when the same path was requested twice.
type Row struct {
	labels []string
	values []any
}

// NewRow pairs labels with values. Both slices must have the same length.
func NewRow(labels []string, values []any) (Row, error) {
	if len(labels) != len(values) {
		return Row{}, fmt.Errorf("row has %d labels but %d values", len(labels), len(values))
	}
	return Row{labels: labels, values: values}, nil
}

// Len returns the number of entries in the row.
func (r Row) Len() int {
	return len(r.values)
}

// Labels returns the row labels in column order.
func (r Row) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// Values returns the row values in column order.
func (r Row) Values() []any {
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

// Get returns the first value reported under label.
func (r Row) Get(label string) (any, bool) {
	for i, l := range r.labels {
		if l == label {
			return r.values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as a JSON object whose keys follow column
// order. Repeated labels are written once per occurrence.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range r.labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", label, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
