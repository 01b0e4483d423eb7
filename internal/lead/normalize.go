package lead

import (
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// Matches reports whether query is a case-insensitive substring of the
// lead's name, company or email. An empty query matches everything.
func (l *Lead) Matches(query string) bool {
	q := Normalize(query)
	if q == "" {
		return true
	}
	for _, field := range []string{l.Name, l.Company, l.Email} {
		if strings.Contains(Normalize(field), q) {
			return true
		}
	}
	return false
}

// CleanField trims an extracted value and drops placeholder nulls some
// models emit as strings.
func CleanField(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "undefined":
		return ""
	}
	return s
}
