package translator

import "strings"

var explanations = []struct {
	keyword string
	text    string
}{
	{"SELECT COUNT", "Count the number of records"},
	{"SELECT DISTINCT", "Get unique values"},
	{"GROUP BY", "Group results by"},
	{"ORDER BY", "Sort results by"},
	{"WHERE", "Filter records where"},
	{"JOIN", "Combine data from multiple tables"},
	{"LIMIT", "Return a limited number of results"},
	{"LIKE", "Match text patterns"},
}

// Explain describes sql in plain words from the clauses it contains
func Explain(sql string) string {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	var parts []string
	for _, e := range explanations {
		if strings.Contains(upper, e.keyword) {
			parts = append(parts, e.text+".")
		}
	}
	if len(parts) == 0 {
		return "Execute database query"
	}
	return "Query: " + strings.Join(parts, " ")
}
