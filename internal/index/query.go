package index

import "strings"

// Page size bounds for paginated search.
const (
	minPageSize = 1
	maxPageSize = 200
)

// BuildQuery turns raw user input into an FTS5 query string. In raw
// mode the input passes through verbatim and may use the full query
// syntax. In safe mode the input is split on whitespace, each term is
// quoted with embedded quotes doubled, and the terms are joined with
// AND, so arbitrary punctuation can never be parsed as query syntax.
func BuildQuery(input string, safe bool) string {
	if !safe {
		return input
	}

	terms := strings.Fields(input)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " AND ")
}

// Paginate converts a 1-based page and a page size into a LIMIT/OFFSET
// pair, clamping page to >= 1 and pageSize into [1, 200].
func Paginate(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}
