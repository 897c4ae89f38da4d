package message

import (
	"regexp"
	"strings"
)

// issuePattern strips issue references ("#42", "fixes #42", parenthesized
// or bare) and "Merge p..." boilerplate lines the model sometimes copies
// out of the diff context.
var issuePattern = regexp.MustCompile(`(\(?(([Ff]ix(es)?)|([Cc]loses?))?\s*#\d+\)?)|([Mm]erge [Pp].*\n)`)

// Sanitize reduces a candidate summary to a single trimmed line with
// issue references removed. The result may be empty; callers must treat
// that as an error rather than commit with it.
func Sanitize(candidate string) string {
	cleaned := issuePattern.ReplaceAllString(candidate, "")
	cleaned = strings.TrimSpace(cleaned)
	first, _, _ := strings.Cut(cleaned, "\n")
	return strings.TrimSpace(first)
}
