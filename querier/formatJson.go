package querier

import (
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/gigapi/gigapi-chat/core"
)

func JsonFormatter(res *core.QueryResult, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(ProcessResultForJSON(res))
}

func NDJsonFormatter(res *core.QueryResult, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, row := range ProcessResultsForJSON(res.Rows) {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// ProcessResultForJSON returns a copy of res with JSON friendly values
func ProcessResultForJSON(res *core.QueryResult) *core.QueryResult {
	if res == nil {
		return nil
	}
	return &core.QueryResult{
		Columns: res.Columns,
		Rows:    ProcessResultsForJSON(res.Rows),
	}
}

// ProcessResultsForJSON prepares results for JSON serialization
func ProcessResultsForJSON(results []map[string]any) []map[string]any {
	processedResults := make([]map[string]any, len(results))
	for i, row := range results {
		processedRow := make(map[string]any, len(row))
		for key, value := range row {
			processedRow[key] = jsonValue(value)
		}
		processedResults[i] = processedRow
	}
	return processedResults
}

func jsonValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	case *big.Int:
		return v.String()
	case duckdb.Decimal:
		return v.String()
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d us", v.Months, v.Days, v.Micros)
	case duckdb.UUID:
		return uuid.UUID(v).String()
	case []any:
		res := make([]any, len(v))
		for i, e := range v {
			res[i] = jsonValue(e)
		}
		return res
	case map[string]any:
		res := make(map[string]any, len(v))
		for k, e := range v {
			res[k] = jsonValue(e)
		}
		return res
	default:
		return v
	}
}
