package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	TypeBoolean = "BOOLEAN"
	TypeBigInt  = "BIGINT"
	TypeDouble  = "DOUBLE"
	TypeVarchar = "VARCHAR"
)

// ColumnSpec is a column of the table about to be materialized
type ColumnSpec struct {
	Name string
	Type string
}

// InferColumns picks a DuckDB type for every column from the non-null values:
// all booleans -> BOOLEAN, all integers -> BIGINT, integers and floats ->
// DOUBLE, anything else (or only nulls) -> VARCHAR.
func InferColumns(records []Record) []ColumnSpec {
	cols := Columns(records)
	specs := make([]ColumnSpec, len(cols))
	for i, name := range cols {
		var bools, ints, floats, others int
		for _, r := range records {
			switch r.Values[name].(type) {
			case nil:
			case bool:
				bools++
			case int64:
				ints++
			case float64:
				floats++
			default:
				others++
			}
		}
		typ := TypeVarchar
		switch {
		case others > 0:
		case bools > 0 && ints+floats == 0:
			typ = TypeBoolean
		case bools > 0:
		case ints > 0 && floats == 0:
			typ = TypeBigInt
		case floats > 0:
			typ = TypeDouble
		}
		specs[i] = ColumnSpec{Name: name, Type: typ}
	}
	return specs
}

// Coerce converts v to the Go type the appender expects for the column
func (c ColumnSpec) Coerce(v any) any {
	if v == nil {
		return nil
	}
	switch c.Type {
	case TypeDouble:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
		return v
	case TypeVarchar:
		return toText(v)
	default:
		return v
	}
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// sqlIdent quotes an identifier for DuckDB
func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func buildCreateTableSQL(table string, specs []ColumnSpec) string {
	parts := make([]string, len(specs))
	for i, c := range specs {
		parts[i] = fmt.Sprintf("%s %s", sqlIdent(c.Name), c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", sqlIdent(table), strings.Join(parts, ",\n  "))
}
