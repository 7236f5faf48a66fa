package cypher

import "strings"

// QuoteIdentifier backtick-quotes a label, relationship type or property
// name. Embedded backticks are doubled, so any user-chosen name stays a
// single identifier.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// QuoteString renders s as a single-quoted Cypher string literal.
func QuoteString(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}
