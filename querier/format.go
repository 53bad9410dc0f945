package querier

import (
	"net/http"

	"github.com/gigapi/gigapi-chat/core"
)

type formatterFn func(res *core.QueryResult, w http.ResponseWriter) error

var formatters = map[string]formatterFn{
	"json":   JsonFormatter,
	"ndjson": NDJsonFormatter,
}
