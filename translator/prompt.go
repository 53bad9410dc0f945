package translator

import (
	"fmt"
	"strings"

	"github.com/gigapi/gigapi-chat/core"
)

// BuildPrompt asks for a single DuckDB statement answering question
func BuildPrompt(question, table string, schema core.Schema) string {
	var cols strings.Builder
	for i, c := range schema {
		if i > 0 {
			cols.WriteByte('\n')
		}
		fmt.Fprintf(&cols, "- %s (%s)", c.Name, c.Type)
	}
	return fmt.Sprintf(`You are a SQL expert. Convert the following natural language query to a valid DuckDB SQL query.

Table name: %s
Columns:
%s

User query: %s

Return ONLY the SQL query without any markdown formatting or explanation. The query should start with SELECT.`,
		table, cols.String(), question)
}

// CleanSQL strips a markdown fence (with optional language tag), surrounding
// whitespace and one trailing semicolon from a completion.
func CleanSQL(text string) string {
	sql := strings.TrimSpace(text)
	if strings.HasPrefix(sql, "```") {
		sql = strings.TrimPrefix(sql, "```")
		// language tag up to the first line break
		if nl := strings.IndexByte(sql, '\n'); nl >= 0 {
			if tag := strings.TrimSpace(sql[:nl]); isLanguageTag(tag) {
				sql = sql[nl+1:]
			}
		} else {
			sql = strings.TrimPrefix(sql, "sql")
		}
		if end := strings.LastIndex(sql, "```"); end >= 0 {
			sql = sql[:end]
		}
		sql = strings.TrimSpace(sql)
	}
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

func isLanguageTag(s string) bool {
	switch strings.ToUpper(s) {
	case "SELECT", "WITH":
		return false
	}
	return !strings.ContainsAny(s, " \t(*")
}
