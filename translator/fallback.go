package translator

import (
	"fmt"
	"strings"

	"github.com/gigapi/gigapi-chat/core"
)

type rule struct {
	keywords []string
	build    func(table string, schema core.Schema) string
}

// rules are tried in order; the first rule with a matching keyword wins
var rules = []rule{
	{
		keywords: []string{"all", "show", "list"},
		build: func(table string, _ core.Schema) string {
			return fmt.Sprintf("SELECT * FROM %s LIMIT 100", table)
		},
	},
	{
		keywords: []string{"count", "how many"},
		build: func(table string, _ core.Schema) string {
			return fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", table)
		},
	},
	{
		keywords: []string{"top", "latest", "recent"},
		build: func(table string, schema core.Schema) string {
			if len(schema) == 0 {
				return ""
			}
			return fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC LIMIT 10", table, quoteIdent(schema[0].Name))
		},
	},
}

// Fallback picks SQL from keywords in question, case-insensitively. The
// ordering rule uses the first column of schema.
func Fallback(question, table string, schema core.Schema) string {
	q := strings.ToLower(question)
	for _, r := range rules {
		if !containsAny(q, r.keywords) {
			continue
		}
		if sql := r.build(table, schema); sql != "" {
			return sql
		}
		break
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT 50", table)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// quoteIdent quotes a column name, which may be a keyword or contain spaces
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
