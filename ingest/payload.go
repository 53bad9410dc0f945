package ingest

import (
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/gigapi/gigapi-chat/core"
)

// Field is a single key of a source object, value kept as raw JSON
type Field struct {
	Key  string
	Raw  []byte
	Type jsonparser.ValueType
}

// RawRecord is a source object with its fields in document order
type RawRecord []Field

// Parse normalizes a payload into records. Accepted shapes:
//   - an array of objects
//   - an object whose "data" field is an array of objects (other keys ignored)
//   - any other object, taken as a single record
//
// Anything else, an empty result, or records without a single field fail with
// core.ErrEmptyPayload.
func Parse(payload []byte) ([]RawRecord, error) {
	value, typ, _, err := jsonparser.Get(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmptyPayload, err)
	}

	var records []RawRecord
	switch typ {
	case jsonparser.Array:
		records, err = parseArray(value)
	case jsonparser.Object:
		data, dataType, _, derr := jsonparser.Get(value, "data")
		if derr == nil && dataType == jsonparser.Array {
			records, err = parseArray(data)
			break
		}
		var rec RawRecord
		rec, err = parseObject(value)
		records = []RawRecord{rec}
	default:
		return nil, fmt.Errorf("%w: unsupported payload type %s", core.ErrEmptyPayload, typ)
	}
	if err != nil {
		return nil, err
	}

	fields := 0
	for _, r := range records {
		fields += len(r)
	}
	if len(records) == 0 || fields == 0 {
		return nil, core.ErrEmptyPayload
	}
	return records, nil
}

func parseArray(data []byte) ([]RawRecord, error) {
	var (
		records []RawRecord
		failure error
	)
	_, err := jsonparser.ArrayEach(data, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
		if failure != nil {
			return
		}
		if err != nil {
			failure = err
			return
		}
		if typ != jsonparser.Object {
			failure = fmt.Errorf("record %d is a %s, not an object", len(records), typ)
			return
		}
		rec, err := parseObject(value)
		if err != nil {
			failure = err
			return
		}
		records = append(records, rec)
	})
	if err == nil {
		err = failure
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmptyPayload, err)
	}
	return records, nil
}

func parseObject(data []byte) (RawRecord, error) {
	var rec RawRecord
	err := jsonparser.ObjectEach(data, func(key []byte, value []byte, typ jsonparser.ValueType, _ int) error {
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		rec = append(rec, Field{Key: k, Raw: value, Type: typ})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmptyPayload, err)
	}
	return rec, nil
}
