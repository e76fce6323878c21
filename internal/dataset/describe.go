package dataset

import (
	"fmt"
	"strings"
)

// Describe renders a compact, deterministic schema summary suitable for a
// language model prompt: table name, columns with inferred types, and the
// retained sample rows.
func Describe(ds *Dataset) string {
	if ds == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table %q: %d rows, %d columns.\n", TableName, ds.RowCount, len(ds.Columns))
	b.WriteString("Columns:\n")
	for _, col := range ds.Columns {
		fmt.Fprintf(&b, "  %s (%s)\n", col.Name, col.Type)
	}
	if len(ds.Samples) > 0 {
		b.WriteString("Sample rows:\n")
		b.WriteString("  " + strings.Join(ds.ColumnNames(), " | ") + "\n")
		for _, row := range ds.Samples {
			b.WriteString("  " + strings.Join(row, " | ") + "\n")
		}
	}
	return b.String()
}
