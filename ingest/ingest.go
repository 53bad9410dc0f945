package ingest

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gigapi/gigapi-chat/core"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateTableName accepts plain identifiers. Names starting with "_" are
// reserved for the store's own tables.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", core.ErrInvalidTableName, name)
	}
	return nil
}

// Pipeline turns payloads into tenant tables
type Pipeline struct {
	Now func() time.Time
}

func NewPipeline() *Pipeline {
	return &Pipeline{Now: func() time.Time { return time.Now().UTC() }}
}

// Ingest normalizes, flattens and materializes payload as table in db. Every
// call is a full snapshot: an existing table of that name is replaced.
func (p *Pipeline) Ingest(ctx context.Context, db core.DB, table, source string, payload []byte) (*core.TableMetadata, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	raw, err := Parse(payload)
	if err != nil {
		return nil, err
	}
	records, err := Flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmptyPayload, err)
	}

	start := time.Now()
	md, err := Materialize(ctx, db.Conn(), table, source, records, p.Now())
	if err != nil {
		core.Errorf(ctx, "ingest of %s for tenant %s failed: %v", table, db.ID(), err)
		return nil, err
	}
	core.Infof(ctx, "ingested %d records from %s into %s in %v", md.RowCount, source, table, time.Since(start))
	return md, nil
}
