// queryClient.go
package querier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gigapi/gigapi-chat/core"
)

// Ensure QueryClient implements core.QueryClient interface
var _ core.QueryClient = (*QueryClient)(nil)

var (
	leadingComments = regexp.MustCompile(`^(\s*(--[^\n]*(\n|$)|/\*(?s:.*?)\*/))*\s*`)
	firstKeyword    = regexp.MustCompile(`^[A-Za-z]+`)
)

// readOnlyVerbs are the statements allowed when the client is read only
var readOnlyVerbs = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"DESCRIBE":  true,
	"SHOW":      true,
	"EXPLAIN":   true,
	"PRAGMA":    true,
	"SUMMARIZE": true,
}

// QueryClient runs statements against a tenant store
type QueryClient struct {
	// ReadOnly rejects everything but queries before it reaches the engine
	ReadOnly bool
}

// NewQueryClient creates a new QueryClient
func NewQueryClient(readOnly bool) *QueryClient {
	return &QueryClient{ReadOnly: readOnly}
}

// Statement returns the first keyword of query, upper cased
func Statement(query string) string {
	query = leadingComments.ReplaceAllString(query, "")
	return strings.ToUpper(firstKeyword.FindString(query))
}

// CheckReadOnly rejects statements that could change the store
func CheckReadOnly(query string) error {
	verb := Statement(query)
	if !readOnlyVerbs[verb] {
		if verb == "" {
			verb = "empty statement"
		}
		return fmt.Errorf("%w: %s", core.ErrStatementDenied, verb)
	}
	if multipleStatements(query) {
		return fmt.Errorf("%w: multiple statements", core.ErrStatementDenied)
	}
	return nil
}

// multipleStatements reports a ";" outside quotes and comments that is
// followed by more than whitespace, comments or further ";". Escape strings
// and dollar quoting are read both ways; either reading finding a second
// statement is enough.
func multipleStatements(query string) bool {
	for _, lexical := range []bool{true, false} {
		if scanStatements(query, lexical) {
			return true
		}
	}
	return false
}

func scanStatements(query string, lexical bool) bool {
	terminated := false
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
			continue
		case strings.HasPrefix(query[i:], "--"):
			i = skipLineComment(query, i)
			continue
		case strings.HasPrefix(query[i:], "/*"):
			i = skipBlockComment(query, i)
			continue
		case c == ';':
			terminated = true
			i++
			continue
		}
		if terminated {
			return true
		}
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(query, i+1, c, false)
		case lexical && (c == 'E' || c == 'e') && i+1 < len(query) && query[i+1] == '\'' && !identByte(query, i-1):
			i = skipQuoted(query, i+2, '\'', true)
		case lexical && c == '$':
			i = skipDollarQuoted(query, i)
		default:
			i++
		}
	}
	return false
}

// skipQuoted returns the index after the closing quote. A doubled quote is
// part of the text, and with backslashes set so is a backslash escape.
func skipQuoted(query string, i int, quote byte, backslashes bool) int {
	for i < len(query) {
		switch query[i] {
		case '\\':
			if backslashes {
				i += 2
				continue
			}
		case quote:
			if i+1 < len(query) && query[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(query)
}

// skipDollarQuoted skips a $tag$...$tag$ string; a lone "$" such as a
// prepared statement parameter is a single byte.
func skipDollarQuoted(query string, i int) int {
	end := strings.IndexByte(query[i+1:], '$')
	if end < 0 {
		return i + 1
	}
	tag := query[i : i+end+2]
	if len(tag) > 2 && tag[1] >= '0' && tag[1] <= '9' {
		return i + 1
	}
	for _, r := range tag[1 : len(tag)-1] {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return i + 1
		}
	}
	body := i + len(tag)
	closing := strings.Index(query[body:], tag)
	if closing < 0 {
		return len(query)
	}
	return body + closing + len(tag)
}

func skipLineComment(query string, i int) int {
	if nl := strings.IndexByte(query[i:], '\n'); nl >= 0 {
		return i + nl + 1
	}
	return len(query)
}

func skipBlockComment(query string, i int) int {
	if end := strings.Index(query[i+2:], "*/"); end >= 0 {
		return i + 2 + end + 2
	}
	return len(query)
}

func identByte(query string, i int) bool {
	if i < 0 {
		return false
	}
	c := query[i]
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Execute runs query and returns its rows with columns in engine order.
// Any failure is reported as core.ErrExecutionFailure and a nil result;
// a query without rows is a successful empty result.
func (c *QueryClient) Execute(ctx context.Context, db core.DB, query string) (*core.QueryResult, error) {
	query = strings.TrimSpace(query)
	if c.ReadOnly {
		if err := CheckReadOnly(query); err != nil {
			core.Warnf(ctx, "rejected statement for tenant %s: %v", db.ID(), err)
			return nil, fmt.Errorf("%w: %w", core.ErrExecutionFailure, err)
		}
	}

	start := time.Now()
	rows, err := db.Conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrExecutionFailure, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get columns: %v", core.ErrExecutionFailure, err)
	}

	result := &core.QueryResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("%w: error scanning row: %v", core.ErrExecutionFailure, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating rows: %v", core.ErrExecutionFailure, err)
	}

	core.Debugf(ctx, "query for tenant %s returned %d rows in %v", db.ID(), len(result.Rows), time.Since(start))
	return result, nil
}
