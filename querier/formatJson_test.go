package querier

import (
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigapi/gigapi-chat/core"
)

func TestProcessResultsForJSON(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 5, time.UTC)
	got := ProcessResultsForJSON([]map[string]any{{
		"int":   int64(42),
		"float": 1.5,
		"time":  ts,
		"bytes": []byte("abc"),
		"big":   big.NewInt(7),
		"null":  nil,
		"list":  []any{ts, int64(1)},
	}})

	assert.Equal(t, []map[string]any{{
		"int":   int64(42),
		"float": 1.5,
		"time":  "2024-01-01T00:00:00.000000005Z",
		"bytes": "abc",
		"big":   "7",
		"null":  nil,
		"list":  []any{"2024-01-01T00:00:00.000000005Z", int64(1)},
	}}, got)
}

func TestFormatters(t *testing.T) {
	res := &core.QueryResult{
		Columns: []string{"id", "title"},
		Rows: []map[string]any{
			{"id": int64(1), "title": "a"},
			{"id": int64(2), "title": nil},
		},
	}

	w := httptest.NewRecorder()
	require.NoError(t, formatters["json"](res, w))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"columns":["id","title"],"data":[{"id":1,"title":"a"},{"id":2,"title":null}]}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, formatters["ndjson"](res, w))
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, "{\"id\":1,\"title\":\"a\"}\n{\"id\":2,\"title\":null}\n", w.Body.String())
}
