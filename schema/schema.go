package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gigapi/gigapi-chat/core"
)

const (
	columnsSQL = `SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'main' AND lower(table_name) = lower(?)
		ORDER BY ordinal_position`

	tablesSQL = `SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'main' AND table_type = 'BASE TABLE' AND NOT starts_with(table_name, '_')
		ORDER BY table_name`

	metadataSQL = `SELECT table_name, source_identifier, created_at, row_count
		FROM _metadata WHERE lower(table_name) = lower(?)`
)

// Of returns the column layout of table in engine order. A table that was
// never ingested yields ok == false.
func Of(ctx context.Context, db core.DB, table string) (core.Schema, bool, error) {
	_, s, err := lookup(ctx, db.Conn(), table)
	if err != nil {
		return nil, false, err
	}
	return s, len(s) > 0, nil
}

// lookup resolves table case-insensitively and returns the stored name with
// its columns.
func lookup(ctx context.Context, conn *sql.DB, table string) (string, core.Schema, error) {
	if table == "" || strings.HasPrefix(table, "_") {
		return "", nil, nil
	}
	rows, err := conn.QueryContext(ctx, columnsSQL, table)
	if err != nil {
		return "", nil, fmt.Errorf("%w: schema of %s: %v", core.ErrEngineFailure, table, err)
	}
	defer rows.Close()

	var (
		name string
		res  core.Schema
	)
	for rows.Next() {
		var c core.Column
		if err := rows.Scan(&name, &c.Name, &c.Type); err != nil {
			return "", nil, fmt.Errorf("%w: schema of %s: %v", core.ErrEngineFailure, table, err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("%w: schema of %s: %v", core.ErrEngineFailure, table, err)
	}
	return name, res, nil
}

// ListTables returns the user tables of a store sorted by name. The metadata
// table and unfinished staging tables are not listed.
func ListTables(ctx context.Context, db core.DB) ([]string, error) {
	rows, err := db.Conn().QueryContext(ctx, tablesSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", core.ErrEngineFailure, err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: list tables: %v", core.ErrEngineFailure, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", core.ErrEngineFailure, err)
	}
	return tables, nil
}

// Describe renders the row count and column layout of table:
//
//	Table 'tickets' has 2 rows with columns:
//	  - id: BIGINT
//	  - title: VARCHAR
func Describe(ctx context.Context, db core.DB, table string) (string, bool, error) {
	conn := db.Conn()
	name, s, err := lookup(ctx, conn, table)
	if err != nil || len(s) == 0 {
		return "", false, err
	}

	var count int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(name)).Scan(&count); err != nil {
		return "", false, fmt.Errorf("%w: count %s: %v", core.ErrEngineFailure, table, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table '%s' has %d rows with columns:", table, count)
	for _, c := range s {
		fmt.Fprintf(&b, "\n  - %s: %s", c.Name, c.Type)
	}
	return b.String(), true, nil
}

// Metadata returns the _metadata row of the latest ingestion of table
func Metadata(ctx context.Context, db core.DB, table string) (*core.TableMetadata, bool, error) {
	var md core.TableMetadata
	err := db.Conn().QueryRowContext(ctx, metadataSQL, table).
		Scan(&md.TableName, &md.SourceIdentifier, &md.CreatedAt, &md.RowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: metadata of %s: %v", core.ErrEngineFailure, table, err)
	}
	return &md, true, nil
}

func quote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
