package ingest

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
)

// Flatten expands every record one level deep. It is total: the output has
// exactly one record per input record.
//
// For each field:
//   - a non-empty object becomes one {field}_{child} column per child; scalar
//     children are copied, container children are stored as JSON text
//   - an array whose first element is an object is stored as JSON text
//   - anything else is copied; remaining containers (empty objects, arrays of
//     scalars) are stored as JSON text since a cell holds a scalar
func Flatten(records []RawRecord) ([]Record, error) {
	res := make([]Record, 0, len(records))
	for i, raw := range records {
		rec, err := flattenRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		res = append(res, rec)
	}
	return res, nil
}

func flattenRecord(raw RawRecord) (Record, error) {
	rec := NewRecord()
	for _, f := range raw {
		switch {
		case f.Type == jsonparser.Object && !emptyObject(f.Raw):
			err := jsonparser.ObjectEach(f.Raw, func(key []byte, value []byte, typ jsonparser.ValueType, _ int) error {
				childKey, err := jsonparser.ParseString(key)
				if err != nil {
					return err
				}
				v, err := cellValue(value, typ)
				if err != nil {
					return err
				}
				rec.Set(f.Key+"_"+childKey, v)
				return nil
			})
			if err != nil {
				return Record{}, fmt.Errorf("field %q: %w", f.Key, err)
			}
		default:
			v, err := cellValue(f.Raw, f.Type)
			if err != nil {
				return Record{}, fmt.Errorf("field %q: %w", f.Key, err)
			}
			rec.Set(f.Key, v)
		}
	}
	return rec, nil
}

// cellValue converts a raw JSON value into a scalar; containers become JSON text
func cellValue(raw []byte, typ jsonparser.ValueType) (any, error) {
	switch typ {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(raw)
	case jsonparser.String:
		return jsonparser.ParseString(raw)
	case jsonparser.Number:
		return parseNumber(raw)
	case jsonparser.Object, jsonparser.Array:
		return jsonText(raw)
	default:
		return nil, fmt.Errorf("unsupported value %q", raw)
	}
}

// parseNumber keeps integers as int64 and everything else as float64
func parseNumber(raw []byte) (any, error) {
	if !bytes.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return i, nil
		}
	}
	return strconv.ParseFloat(string(raw), 64)
}

func jsonText(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func emptyObject(raw []byte) bool {
	empty := true
	jsonparser.ObjectEach(raw, func(_ []byte, _ []byte, _ jsonparser.ValueType, _ int) error {
		empty = false
		return nil
	})
	return empty
}
