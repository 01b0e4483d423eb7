package ops

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// Search limits
const (
	MaxQueryLength  = 200
	MaxSnippetChars = 120
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query  string // required
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// SearchResultItem is a matching lead with the field that matched.
type SearchResultItem struct {
	lead.Lead
	MatchedField string `json:"matched_field"`
	// Snippet is HTML-safe: lead content is escaped; only <b>...</b>
	// highlight tags are present.
	Snippet string `json:"snippet"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"`
}

// Search finds leads whose name, company or email contains the query,
// ignoring case. Results keep store order (newest first).
func Search(ctx context.Context, database *sql.DB, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	limit, offset := clampPage(input.Limit, input.Offset)

	matches, err := db.NewLeads(database).Search(ctx, query)
	if err != nil {
		return nil, err
	}

	total := len(matches)
	page := []lead.Lead{}
	if offset < total {
		page = matches[offset:min(offset+limit, total)]
	}

	items := make([]SearchResultItem, len(page))
	for i := range page {
		field, snippet := highlight(&page[i], query)
		items[i] = SearchResultItem{
			Lead:         page[i],
			MatchedField: field,
			Snippet:      truncateSnippet(snippet, MaxSnippetChars),
		}
	}

	return &SearchOutput{
		Items:      items,
		Pagination: paginate(limit, offset, len(items), total),
		Sort:       "created_at_desc",
	}, nil
}

// highlight returns the first field containing query and an escaped copy of
// it with the match wrapped in <b>. If lowercasing changes the byte length
// of the value, the match cannot be located safely and the value is returned
// without highlighting.
func highlight(l *lead.Lead, query string) (string, string) {
	q := lead.Normalize(query)
	fields := []struct {
		name  string
		value string
	}{
		{"name", l.Name},
		{"company", l.Company},
		{"email", l.Email},
	}
	for _, f := range fields {
		if !strings.Contains(lead.Normalize(f.value), q) {
			continue
		}
		lower := strings.ToLower(f.value)
		idx := strings.Index(lower, q)
		if idx < 0 || len(lower) != len(f.value) {
			return f.name, html.EscapeString(f.value)
		}
		end := idx + len(q)
		return f.name, html.EscapeString(f.value[:idx]) +
			"<b>" + html.EscapeString(f.value[idx:end]) + "</b>" +
			html.EscapeString(f.value[end:])
	}
	return "", ""
}

// truncateSnippet truncates a snippet to approximately maxChars while:
// 1. Preserving valid UTF-8 (never splits multi-byte runes)
// 2. Preserving markup integrity (closes any open <b> tags)
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}
	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	if truncateAt == 0 {
		return "..."
	}

	truncated := s[:truncateAt]

	// Only <b>, </b> and entities can be cut in half here.
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	for range strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>") {
		truncated += "</b>"
	}
	return truncated + "..."
}
