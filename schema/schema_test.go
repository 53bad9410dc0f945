package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/ingest"
	"github.com/gigapi/gigapi-chat/tenant"
)

func newStore(t *testing.T) *tenant.Store {
	t.Helper()
	s, err := tenant.Open(context.Background(), "tenant-a", "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ingestJSON(t *testing.T, s *tenant.Store, table, payload string) {
	t.Helper()
	_, err := ingest.NewPipeline().Ingest(context.Background(), s, table, "rpc_"+table, []byte(payload))
	require.NoError(t, err)
}

func TestOfKeepsEngineOrder(t *testing.T) {
	s := newStore(t)
	ingestJSON(t, s, "tickets", `[{"id": 1, "title": "a", "created_at": "2024-01-01", "score": 1.5}]`)

	got, ok, err := Of(context.Background(), s, "tickets")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.Schema{
		{Name: "id", Type: "BIGINT"},
		{Name: "title", Type: "VARCHAR"},
		{Name: "created_at", Type: "VARCHAR"},
		{Name: "score", Type: "DOUBLE"},
	}, got)
	assert.Equal(t, []string{"id", "title", "created_at", "score"}, got.Names())

	upper, ok, err := Of(context.Background(), s, "TICKETS")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, got, upper)
}

func TestOfAbsentTable(t *testing.T) {
	s := newStore(t)
	for _, table := range []string{"tickets", "", "_metadata"} {
		got, ok, err := Of(context.Background(), s, table)
		require.NoError(t, err)
		assert.False(t, ok, table)
		assert.Nil(t, got)
	}
}

func TestListTables(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tables, err := ListTables(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, tables)

	ingestJSON(t, s, "vendors", `[{"a": 1}]`)
	ingestJSON(t, s, "assets", `[{"a": 1}]`)
	ingestJSON(t, s, "assets", `[{"a": 1}, {"a": 2}]`)
	_, err = s.Conn().Exec(`CREATE TABLE _staging_assets_x (a BIGINT)`)
	require.NoError(t, err)

	tables, err = ListTables(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"assets", "vendors"}, tables)
}

func TestDescribe(t *testing.T) {
	s := newStore(t)
	ingestJSON(t, s, "tickets", `{"data": [{"id": 1, "vendor": {"name": "x"}}, {"id": 2}]}`)

	got, ok, err := Describe(context.Background(), s, "tickets")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Table 'tickets' has 2 rows with columns:\n  - id: BIGINT\n  - vendor_name: VARCHAR", got)

	_, ok, err = Describe(context.Background(), s, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetadata(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &ingest.Pipeline{Now: func() time.Time { return now }}

	_, err := p.Ingest(ctx, s, "tickets", "get_tickets", []byte(`[{"a": 1}, {"a": 2}, {"a": 3}]`))
	require.NoError(t, err)

	md, ok, err := Metadata(ctx, s, "tickets")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tickets", md.TableName)
	assert.Equal(t, "get_tickets", md.SourceIdentifier)
	assert.Equal(t, int64(3), md.RowCount)
	assert.True(t, now.Equal(md.CreatedAt))

	_, ok, err = Metadata(ctx, s, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
