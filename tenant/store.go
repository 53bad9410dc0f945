package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/gigapi/gigapi-chat/core"
	_ "github.com/marcboeker/go-duckdb/v2"
)

// MetadataTable records the latest ingestion of every table in a store
const MetadataTable = "_metadata"

const createMetadataSQL = `CREATE TABLE IF NOT EXISTS _metadata (
	table_name VARCHAR PRIMARY KEY,
	source_identifier VARCHAR,
	created_at TIMESTAMP,
	row_count BIGINT
)`

// storeOptions confine a store to its own database: no file readers, ATTACH,
// COPY or extension loading, and no SET to turn them back on.
const storeOptions = "enable_external_access=false&lock_configuration=true"

// Ensure Store implements core.DB interface
var _ core.DB = (*Store)(nil)

// Store is the private DuckDB database of a single tenant
type Store struct {
	id   string
	dsn  string
	db   *sql.DB
	once sync.Once
	err  error

	closeFn func() error
}

// Open opens the DuckDB database at dsn (empty for in-memory) and makes sure
// the metadata table exists.
func Open(ctx context.Context, id, dsn string) (*Store, error) {
	db, err := sql.Open("duckdb", dsn+"?"+storeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open DuckDB %q: %w", dsn, err)
	}
	if _, err := db.ExecContext(ctx, createMetadataSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}
	return &Store{id: id, dsn: dsn, db: db, closeFn: db.Close}, nil
}

// ID returns the tenant id
func (s *Store) ID() string { return s.id }

// DSN returns the database path, empty for in-memory stores
func (s *Store) DSN() string { return s.dsn }

// Conn returns the engine handle
func (s *Store) Conn() *sql.DB { return s.db }

// Close releases the engine handle. Only the first call closes, later calls
// return the same result.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.err = s.closeFn()
	})
	return s.err
}
