// Package sqlcheck screens model-produced SQL before it reaches the
// engine: only a single read-only statement over the loaded dataset table
// is allowed through.
package sqlcheck

import (
	"fmt"
	"strings"
	"unicode"
)

type Error struct {
	Reason string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sql rejected (%s): %s", e.Reason, e.Detail)
}

const (
	ReasonEmpty              = "empty"
	ReasonMultipleStatements = "multiple_statements"
	ReasonNotReadOnly        = "not_read_only"
	ReasonForbiddenKeyword   = "forbidden_keyword"
	ReasonUnknownTable       = "unknown_table"
)

// Statement kinds and side-effecting keywords DuckDB would happily accept
// but that must never come out of a translation. The scan covers bare
// words only: a column that collides with one of these must be referenced
// as a quoted identifier, which the tokenizer keeps out of this check.
var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "merge": {},
	"drop": {}, "alter": {}, "create": {}, "truncate": {},
	"attach": {}, "detach": {}, "copy": {}, "export": {}, "import": {},
	"pragma": {}, "install": {}, "load": {}, "call": {}, "set": {},
	"grant": {}, "revoke": {}, "vacuum": {}, "checkpoint": {},
}

// Validate checks that sqlText is one read-only SELECT/WITH statement whose
// table references resolve to tableName or to CTEs defined in the statement
// itself. Column-level references are left to the engine.
func Validate(sqlText, tableName string) error {
	tokens := tokenize(StripTrailingSemicolons(sqlText))
	if len(tokens) == 0 {
		return &Error{Reason: ReasonEmpty, Detail: "statement is empty"}
	}

	first := ""
	for _, tok := range tokens {
		if tok.kind == tokenWord {
			first = strings.ToLower(tok.text)
			break
		}
	}
	if first != "select" && first != "with" {
		return &Error{Reason: ReasonNotReadOnly, Detail: "only SELECT/WITH statements are allowed"}
	}

	ctes := collectCTENames(tokens)
	for i, tok := range tokens {
		switch tok.kind {
		case tokenPunct:
			if tok.text == ";" {
				return &Error{Reason: ReasonMultipleStatements, Detail: "only a single statement is allowed"}
			}
		case tokenWord:
			word := strings.ToLower(tok.text)
			if _, forbidden := forbiddenKeywords[word]; forbidden {
				return &Error{Reason: ReasonForbiddenKeyword, Detail: fmt.Sprintf("keyword %q is not allowed", word)}
			}
			if word == "from" {
				if err := checkFromList(tokens, i+1, tableName, ctes); err != nil {
					return err
				}
			}
			if word == "join" {
				if err := checkTarget(tokens, i+1, tableName, ctes); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// StripTrailingSemicolons removes statement terminators so a trailing ";"
// is not mistaken for a second statement.
func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// Keywords that terminate a FROM clause's comma-separated target list.
var fromClauseEnders = map[string]struct{}{
	"where": {}, "group": {}, "having": {}, "order": {}, "limit": {},
	"offset": {}, "qualify": {}, "window": {}, "union": {},
	"intersect": {}, "except": {}, "on": {}, "using": {}, "join": {},
}

// checkFromList screens every target of a FROM clause. A "," at the
// clause's own nesting depth is an implicit cross join and introduces
// another target, which gets the same treatment as the first.
func checkFromList(tokens []token, index int, tableName string, ctes map[string]struct{}) error {
	if err := checkTarget(tokens, index, tableName, ctes); err != nil {
		return err
	}
	depth := 0
	for i := index; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.kind {
		case tokenPunct:
			switch tok.text {
			case "(":
				depth++
			case ")":
				depth--
				if depth < 0 {
					return nil
				}
			case ",":
				if depth == 0 {
					if err := checkTarget(tokens, i+1, tableName, ctes); err != nil {
						return err
					}
				}
			}
		case tokenWord:
			if depth == 0 {
				if _, ok := fromClauseEnders[strings.ToLower(tok.text)]; ok {
					return nil
				}
			}
		}
	}
	return nil
}

func checkTarget(tokens []token, index int, tableName string, ctes map[string]struct{}) error {
	if index >= len(tokens) {
		return &Error{Reason: ReasonUnknownTable, Detail: "dangling FROM/JOIN"}
	}
	target := tokens[index]
	// Derived table; its inner FROM targets are checked on their own turn.
	if target.kind == tokenPunct && target.text == "(" {
		return nil
	}
	if target.kind != tokenWord && target.kind != tokenQuoted {
		return &Error{Reason: ReasonUnknownTable, Detail: fmt.Sprintf("unexpected FROM target %q", target.text)}
	}
	// LATERAL and join qualifiers sit between the keyword and the target.
	lowered := strings.ToLower(target.text)
	switch lowered {
	case "lateral", "inner", "outer", "left", "right", "full", "cross", "asof", "semi", "anti":
		return checkTarget(tokens, index+1, tableName, ctes)
	}
	// A "(" right after the name means a table function (read_csv and
	// friends); those can reach the filesystem, so they are rejected.
	if index+1 < len(tokens) && tokens[index+1].kind == tokenPunct && tokens[index+1].text == "(" {
		return &Error{Reason: ReasonForbiddenKeyword, Detail: fmt.Sprintf("table function %q is not allowed", target.text)}
	}
	if strings.EqualFold(target.text, tableName) {
		return nil
	}
	if _, ok := ctes[lowered]; ok {
		return nil
	}
	return &Error{Reason: ReasonUnknownTable, Detail: fmt.Sprintf("unknown table %q", target.text)}
}

// collectCTENames finds identifiers bound by "name AS (" so WITH queries
// can reference their own CTEs.
func collectCTENames(tokens []token) map[string]struct{} {
	names := map[string]struct{}{}
	for i := 0; i+2 < len(tokens); i++ {
		if tokens[i].kind != tokenWord && tokens[i].kind != tokenQuoted {
			continue
		}
		if tokens[i+1].kind == tokenWord && strings.EqualFold(tokens[i+1].text, "as") &&
			tokens[i+2].kind == tokenPunct && tokens[i+2].text == "(" {
			names[strings.ToLower(tokens[i].text)] = struct{}{}
		}
	}
	return names
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuoted
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits SQL into words, quoted identifiers, and punctuation,
// skipping string literals and comments so their contents are never
// mistaken for keywords.
func tokenize(sqlText string) []token {
	var tokens []token
	runes := []rune(sqlText)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'':
			i = skipStringLiteral(runes, i)
		case r == '"':
			text, next := readQuoted(runes, i)
			tokens = append(tokens, token{kind: tokenQuoted, text: text})
			i = next
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2
		case isWordRune(r):
			start := i
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: string(runes[start:i])})
		default:
			tokens = append(tokens, token{kind: tokenPunct, text: string(r)})
			i++
		}
	}
	return tokens
}

func skipStringLiteral(runes []rune, start int) int {
	i := start + 1
	for i < len(runes) {
		if runes[i] == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func readQuoted(runes []rune, start int) (string, int) {
	var b strings.Builder
	i := start + 1
	for i < len(runes) {
		if runes[i] == '"' {
			if i+1 < len(runes) && runes[i+1] == '"' {
				b.WriteRune('"')
				i += 2
				continue
			}
			return b.String(), i + 1
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String(), i
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}
