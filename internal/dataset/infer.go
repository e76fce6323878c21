package dataset

import (
	"strconv"
	"strings"
	"time"
)

// Only layouts DuckDB's default VARCHAR cast accepts may infer as
// DATE/TIMESTAMP; the engine attaches the CSV with these types and no
// dateformat override, so anything else must stay text to keep the
// dataset queryable.
var dateLayouts = []string{
	"2006-01-02",
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// inferColumnType picks the narrowest type that accepts every non-empty
// value in the column. Empty columns fall back to text.
func inferColumnType(values []string) ColumnType {
	canBool := true
	canInt := true
	canDouble := true
	canDate := true
	canTimestamp := true
	seen := false

	for _, value := range values {
		if value == "" {
			continue
		}
		seen = true
		if canBool && !isBool(value) {
			canBool = false
		}
		if canInt && !isInt(value) {
			canInt = false
		}
		if canDouble && !isDouble(value) {
			canDouble = false
		}
		if canDate && !matchesAny(value, dateLayouts) {
			canDate = false
		}
		if canTimestamp && !matchesAny(value, timestampLayouts) {
			canTimestamp = false
		}
		if !canBool && !canInt && !canDouble && !canDate && !canTimestamp {
			return TypeText
		}
	}
	if !seen {
		return TypeText
	}

	switch {
	case canBool:
		return TypeBoolean
	case canInt:
		return TypeInteger
	case canDouble:
		return TypeDouble
	case canTimestamp:
		return TypeTimestamp
	case canDate:
		return TypeDate
	default:
		return TypeText
	}
}

func isBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false":
		return true
	default:
		return false
	}
}

func isInt(value string) bool {
	_, err := strconv.ParseInt(value, 10, 64)
	return err == nil
}

func isDouble(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func matchesAny(value string, layouts []string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}
