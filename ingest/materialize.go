package ingest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/gigapi/gigapi-chat/core"
)

// StagingPrefix marks tables that are still being loaded
const StagingPrefix = "_staging_"

// table names are case-insensitive, so the previous row may use other casing
const deleteMetadataSQL = `DELETE FROM _metadata
	WHERE lower(table_name) = lower(?) AND table_name <> ?`

const upsertMetadataSQL = `INSERT OR REPLACE INTO _metadata
	(table_name, source_identifier, created_at, row_count)
	VALUES (?, ?, ?, ?)`

// Materialize replaces table with the given records and records its metadata.
// Rows are loaded into a staging table first; the swap into place and the
// metadata upsert happen in one transaction, so a failure leaves the previous
// table untouched.
func Materialize(ctx context.Context, db *sql.DB, table, source string, records []Record, now time.Time) (*core.TableMetadata, error) {
	records = FoldColumns(records)
	specs := InferColumns(records)
	if len(specs) == 0 {
		return nil, core.ErrEmptyPayload
	}

	staging := StagingPrefix + table + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := db.ExecContext(ctx, buildCreateTableSQL(staging, specs)); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", core.ErrEngineFailure, table, err)
	}

	md, err := func() (*core.TableMetadata, error) {
		if err := appendRows(ctx, db, staging, specs, records); err != nil {
			return nil, fmt.Errorf("write %s: %v", table, err)
		}
		return swap(ctx, db, staging, table, source, int64(len(records)), now)
	}()
	if err != nil {
		if _, derr := db.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+sqlIdent(staging)); derr != nil {
			core.Errorf(ctx, "failed to drop staging table %s: %v", staging, derr)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrEngineFailure, err)
	}
	return md, nil
}

// appendRows bulk loads records through the DuckDB appender
func appendRows(ctx context.Context, db *sql.DB, table string, specs []ColumnSpec, records []Record) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		appender, err := duckdb.NewAppenderFromConn(dc, "", table)
		if err != nil {
			return err
		}
		row := make([]driver.Value, len(specs))
		for _, rec := range records {
			for i, spec := range specs {
				row[i] = spec.Coerce(rec.Values[spec.Name])
			}
			if err := appender.AppendRow(row...); err != nil {
				appender.Close()
				return err
			}
		}
		return appender.Close()
	})
}

func swap(ctx context.Context, db *sql.DB, staging, table, source string, rows int64, now time.Time) (*core.TableMetadata, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", sqlIdent(table), sqlIdent(staging)),
		"DROP TABLE " + sqlIdent(staging),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("replace %s: %v", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, deleteMetadataSQL, table, table); err != nil {
		return nil, fmt.Errorf("metadata %s: %v", table, err)
	}
	if _, err := tx.ExecContext(ctx, upsertMetadataSQL, table, source, now, rows); err != nil {
		return nil, fmt.Errorf("metadata %s: %v", table, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &core.TableMetadata{
		TableName:        table,
		SourceIdentifier: source,
		CreatedAt:        now,
		RowCount:         rows,
	}, nil
}
