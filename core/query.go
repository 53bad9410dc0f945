package core

import (
	"context"
	"database/sql"
	"time"
)

// TableMetadata is the _metadata row describing the latest ingestion of a table
type TableMetadata struct {
	TableName        string    `json:"table_name"`
	SourceIdentifier string    `json:"source_identifier"`
	CreatedAt        time.Time `json:"created_at"`
	RowCount         int64     `json:"row_count"`
}

// Column is a single entry of a table layout as reported by the engine
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the ordered column layout of a table
type Schema []Column

// Names returns column names in schema order
func (s Schema) Names() []string {
	res := make([]string, len(s))
	for i, c := range s {
		res[i] = c.Name
	}
	return res
}

// QueryResult holds the rows of a successful query.
// A nil *QueryResult means the query failed; zero rows is still a success.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"data"`
}

// DB is the part of a tenant store the pipeline components need
type DB interface {
	// Conn returns the engine handle owned by the store
	Conn() *sql.DB
	// ID returns the tenant id the store belongs to
	ID() string
}

// QueryClient defines the interface for querying a tenant store
type QueryClient interface {
	// Execute runs a statement and returns the results
	Execute(ctx context.Context, db DB, query string) (*QueryResult, error)
}
