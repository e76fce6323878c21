package chart

import "strings"

// Spec is the chart suggestion attached to a translation: a kind plus the
// result columns to use for each axis.
type Spec struct {
	Kind string `json:"kind"`
	X    string `json:"x"`
	Y    string `json:"y"`
}

var allowedKinds = map[string]string{
	"bar":     "bar",
	"column":  "bar",
	"line":    "line",
	"area":    "line",
	"scatter": "scatter",
	"pie":     "pie",
}

// Resolve validates a suggested chart against the columns actually present
// in a query result. Any mismatch (unknown kind, missing axis column)
// returns nil, which the caller renders as table-only. Axis names are
// rewritten to the canonical column casing.
func Resolve(spec *Spec, columns []string) *Spec {
	if spec == nil {
		return nil
	}
	kind, ok := allowedKinds[strings.ToLower(strings.TrimSpace(spec.Kind))]
	if !ok {
		return nil
	}
	x, ok := canonicalColumn(spec.X, columns)
	if !ok {
		return nil
	}
	y, ok := canonicalColumn(spec.Y, columns)
	if !ok {
		return nil
	}
	return &Spec{Kind: kind, X: x, Y: y}
}

func canonicalColumn(name string, columns []string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, col := range columns {
		if strings.EqualFold(col, name) {
			return col, true
		}
	}
	return "", false
}
