package workflow

import "strings"

// Normalize lowercases the query, collapses every run of whitespace to a
// single space and trims leading and trailing whitespace. It is pure and
// idempotent: Normalize(Normalize(q)) == Normalize(q) for any q.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
