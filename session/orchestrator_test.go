package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigapi/gigapi-chat/config"
	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/querier"
	"github.com/gigapi/gigapi-chat/tenant"
	"github.com/gigapi/gigapi-chat/translator"
)

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Root = ":memory:"
	cfg.Completion.APIKey = ""
	cfg.Workers.Size = 4
	return cfg
}

func newOrchestrator(t *testing.T, cfg *config.Configuration) *Orchestrator {
	t.Helper()
	o := New(cfg, afero.NewMemMapFs(), nil)
	t.Cleanup(func() { o.Close() })
	return o
}

const tickets = `{"data": [
	{"id": 1, "title": "printer", "vendor": {"name": "acme"}},
	{"id": 2, "title": "laptop", "vendor": {"name": "globex"}}
]}`

func TestIngestAndAsk(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	ingested, err := o.Ingest(ctx, "tenant-a", "tickets", "get_tickets", []byte(tickets))
	require.NoError(t, err)
	assert.Equal(t, core.InitResponse{
		IsSuccess: true,
		Message:   "Successfully stored get_tickets data in table 'tickets'",
		TableName: "tickets",
		TableInfo: "Table 'tickets' has 2 rows with columns:\n  - id: BIGINT\n  - title: VARCHAR\n  - vendor_name: VARCHAR",
	}, ingested)

	resp, err := o.Ask(ctx, "tenant-a", "tickets", "how many tickets are there?")
	require.NoError(t, err)
	require.True(t, resp.IsSuccess, resp.Message)
	assert.Equal(t, "SELECT COUNT(*) AS total FROM tickets", resp.Query)
	assert.Equal(t, "Query: Count the number of records.", resp.Explanation)
	assert.Equal(t, []string{"total"}, resp.Result.Columns)
	assert.Equal(t, []map[string]any{{"total": int64(2)}}, resp.Result.Rows)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 1, *resp.Count)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Ingestions.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.Metrics.IngestedRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Queries.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Translations.WithLabelValues(translator.SourceFallback)))
}

func TestAskUsesFirstColumnForLatest(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	_, err := o.Ingest(ctx, "tenant-a", "tickets", "src", []byte(`[
		{"id": 1, "created_at": "2024-01-02"},
		{"id": 3, "created_at": "2024-01-01"},
		{"id": 2, "created_at": "2024-01-03"}
	]`))
	require.NoError(t, err)

	resp, err := o.Ask(ctx, "tenant-a", "tickets", "the latest 5")
	require.NoError(t, err)
	require.True(t, resp.IsSuccess)
	assert.Equal(t, `SELECT * FROM tickets ORDER BY "id" DESC LIMIT 10`, resp.Query)
	assert.Equal(t, int64(3), resp.Result.Rows[0]["id"])
}

func TestAskLatestOnKeywordColumn(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	_, err := o.Ingest(ctx, "tenant-a", "orders", "src", []byte(`[
		{"order": 2, "created at": "2024-01-02"},
		{"order": 5, "created at": "2024-01-01"}
	]`))
	require.NoError(t, err)

	resp, err := o.Ask(ctx, "tenant-a", "orders", "most recent orders")
	require.NoError(t, err)
	require.True(t, resp.IsSuccess, resp.Message)
	assert.Equal(t, `SELECT * FROM orders ORDER BY "order" DESC LIMIT 10`, resp.Query)
	assert.Equal(t, int64(5), resp.Result.Rows[0]["order"])
	assert.Equal(t, "2024-01-01", resp.Result.Rows[0]["created at"])
}

func TestAskUnknownTable(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))

	resp, err := o.Ask(context.Background(), "tenant-a", "nope", "show all")
	require.NoError(t, err)
	assert.Equal(t, core.QueryResponse{Message: "Table 'nope' not found"}, resp)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.Metrics.Queries.WithLabelValues("not_found")))
}

func TestAskExecutionFailure(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()
	_, err := o.Ingest(ctx, "tenant-a", "tickets", "src", []byte(tickets))
	require.NoError(t, err)

	for _, sql := range []string{"SELECT missing_column FROM tickets", "DROP TABLE tickets"} {
		o.Translator = translator.New(completerFunc(func(context.Context, string) (string, error) {
			return sql, nil
		}), o.Metrics)

		resp, err := o.Ask(ctx, "tenant-a", "tickets", "anything")
		require.NoError(t, err)
		assert.False(t, resp.IsSuccess)
		assert.Equal(t, "Query execution failed", resp.Message)
		assert.Equal(t, sql, resp.Query)
		assert.Nil(t, resp.Result)
	}

	// the denied statement never reached the store
	info, err := o.TableInfo(ctx, "tenant-a", "tickets")
	require.NoError(t, err)
	assert.Contains(t, info.Info, "has 2 rows")
}

func TestIngestFailures(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	for _, payload := range []string{`[]`, `{}`, `"text"`} {
		resp, err := o.Ingest(ctx, "tenant-a", "tickets", "src", []byte(payload))
		require.NoError(t, err)
		assert.False(t, resp.IsSuccess, payload)
		assert.Equal(t, "No records to store in table 'tickets'", resp.Message)
	}

	resp, err := o.Ingest(ctx, "tenant-a", "_metadata", "src", []byte(`[{"a": 1}]`))
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess)
	assert.Equal(t, "Invalid table name '_metadata'", resp.Message)

	list, err := o.ListTables(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, core.TableListResponse{Tables: []string{}, Count: 0}, list)
}

func TestReingestReplaces(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	_, err := o.Ingest(ctx, "tenant-a", "tickets", "src", []byte(`[{"a": 1}, {"a": 2}, {"a": 3}]`))
	require.NoError(t, err)
	_, err = o.Ingest(ctx, "tenant-a", "tickets", "src", []byte(`[{"b": "x"}]`))
	require.NoError(t, err)

	list, err := o.ListTables(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, core.TableListResponse{Tables: []string{"tickets"}, Count: 1}, list)

	info, err := o.TableInfo(ctx, "tenant-a", "tickets")
	require.NoError(t, err)
	assert.Equal(t, core.TableInfoResponse{
		TableName: "tickets",
		Info:      "Table 'tickets' has 1 rows with columns:\n  - b: VARCHAR",
	}, info)
}

func TestTenantsAreIsolated(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	_, err := o.Ingest(ctx, "tenant-a", "tickets", "src", []byte(tickets))
	require.NoError(t, err)

	list, err := o.ListTables(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, list.Tables)

	resp, err := o.Ask(ctx, "tenant-b", "tickets", "show all")
	require.NoError(t, err)
	assert.Equal(t, "Table 'tickets' not found", resp.Message)

	_, err = o.TableInfo(ctx, "tenant-b", "tickets")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTenantCannotReadAnotherTenantsFile(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t)
	cfg.Store.Root = root
	o := New(cfg, afero.NewOsFs(), nil)
	t.Cleanup(func() { o.Close() })
	ctx := context.Background()

	_, err := o.Ingest(ctx, "victim", "secrets", "src", []byte(`{"ssn": "123-45-6789"}`))
	require.NoError(t, err)
	victimFile := filepath.Join(tenant.NewProvisioner(afero.NewOsFs(), root).Dir("victim"), "data.duckdb")

	attacks := []string{
		fmt.Sprintf("SELECT * FROM read_blob('%s')", victimFile),
		fmt.Sprintf("SELECT * FROM read_text('%s')", victimFile),
		fmt.Sprintf("SELECT 1 --'\n; ATTACH '%s' AS v (READ_ONLY); SELECT * FROM v.secrets", victimFile),
	}
	for _, readOnly := range []bool{true, false} {
		o.Client = querier.NewQueryClient(readOnly)
		for _, query := range attacks {
			res, err := o.Execute(ctx, "attacker", query)
			assert.ErrorIs(t, err, core.ErrExecutionFailure, query)
			assert.Nil(t, res, query)
		}
	}

	res, err := o.Execute(ctx, "victim", "SELECT ssn FROM secrets")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"ssn": "123-45-6789"}}, res.Rows)
}

func TestInvalidTenantIsHardFault(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	_, err := o.Ask(context.Background(), "../etc", "tickets", "show")
	assert.ErrorIs(t, err, core.ErrProvision)
	_, err = o.Ingest(context.Background(), "", "tickets", "src", []byte(tickets))
	assert.ErrorIs(t, err, core.ErrProvision)
}

func TestExecuteCountOnEmptyTable(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	store, err := o.Registry.GetOrCreate(ctx, "tenant-a")
	require.NoError(t, err)
	_, err = store.Conn().Exec(`CREATE TABLE t (a BIGINT)`)
	require.NoError(t, err)

	res, err := o.Execute(ctx, "tenant-a", `SELECT COUNT(*) FROM t`)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Rows, 1)

	_, err = o.Execute(ctx, "tenant-a", `SELECT * FROM missing`)
	assert.ErrorIs(t, err, core.ErrExecutionFailure)
}

func rpcServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "JWT expired"}`))
			return
		}
		switch r.URL.Path {
		case "/rest/v1/rpc/fn_get_tickets":
			w.Write([]byte(tickets))
		case "/rest/v1/rpc/fn_empty":
			w.Write([]byte(`{"data": []}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitialize(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.BaseURL = rpcServer(t).URL
	o := newOrchestrator(t, cfg)
	ctx := context.Background()

	resp, err := o.Initialize(ctx, "tenant-a", "good", "tickets", "fn_get_tickets")
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess)
	assert.Equal(t, "Successfully stored fn_get_tickets data in table 'tickets'", resp.Message)
	assert.Contains(t, resp.TableInfo, "Table 'tickets' has 2 rows")

	resp, err = o.Initialize(ctx, "tenant-a", "bad", "tickets", "fn_get_tickets")
	require.NoError(t, err)
	assert.Equal(t, core.InitResponse{Message: `API error: {"message": "JWT expired"}`, StatusCode: http.StatusUnauthorized}, resp)

	resp, err = o.Initialize(ctx, "tenant-a", "good", "tickets", "fn_missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = o.Initialize(ctx, "tenant-a", "good", "empty", "fn_empty")
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess)

	// the failed calls left the first table alone
	info, err := o.TableInfo(ctx, "tenant-a", "tickets")
	require.NoError(t, err)
	assert.Contains(t, info.Info, "has 2 rows")
}

func TestConcurrentTenants(t *testing.T) {
	o := newOrchestrator(t, testConfig(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("tenant-%d", i%4)
			table := fmt.Sprintf("t%d", i)
			resp, err := o.Ingest(ctx, id, table, "src", []byte(tickets))
			assert.NoError(t, err)
			assert.True(t, resp.IsSuccess, resp.Message)

			q, err := o.Ask(ctx, id, table, "how many")
			assert.NoError(t, err)
			assert.True(t, q.IsSuccess, q.Message)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, o.Registry.Len())
	for i := 0; i < 4; i++ {
		list, err := o.ListTables(ctx, fmt.Sprintf("tenant-%d", i))
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("t%d", i), fmt.Sprintf("t%d", i+4)}, list.Tables)
	}
}
