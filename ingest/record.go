package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Record is a flat row: column name to scalar (nil, bool, int64, float64 or string).
// Keys keeps the first-seen column order.
type Record struct {
	Keys   []string
	Values map[string]any
}

func NewRecord() Record {
	return Record{Values: make(map[string]any)}
}

// Set stores v under k. A key seen before keeps its original position.
func (r *Record) Set(k string, v any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, ok := r.Values[k]; !ok {
		r.Keys = append(r.Keys, k)
	}
	r.Values[k] = v
}

// Get returns the value of k; missing columns read as nil
func (r Record) Get(k string) (any, bool) {
	v, ok := r.Values[k]
	return v, ok
}

func (r Record) Len() int {
	return len(r.Keys)
}

// MarshalJSON writes the record as an object with keys in column order
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.Values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Columns returns the union of the record columns in first-seen order
func Columns(records []Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range records {
		for _, k := range r.Keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// FoldColumns renames columns that only differ in case from an earlier one,
// since DuckDB identifiers are case-insensitive: "Name" then "name" become
// "Name" and "name_1". Suffixes skip every name already in use.
func FoldColumns(records []Record) []Record {
	cols := Columns(records)
	taken := make(map[string]bool, len(cols))
	var clashes []string
	for _, c := range cols {
		if taken[strings.ToLower(c)] {
			clashes = append(clashes, c)
			continue
		}
		taken[strings.ToLower(c)] = true
	}
	if len(clashes) == 0 {
		return records
	}

	rename := make(map[string]string, len(clashes))
	for _, c := range clashes {
		for i := 1; ; i++ {
			name := fmt.Sprintf("%s_%d", c, i)
			if !taken[strings.ToLower(name)] {
				taken[strings.ToLower(name)] = true
				rename[c] = name
				break
			}
		}
	}

	res := make([]Record, len(records))
	for i, r := range records {
		folded := NewRecord()
		for _, k := range r.Keys {
			name, ok := rename[k]
			if !ok {
				name = k
			}
			folded.Set(name, r.Values[k])
		}
		res[i] = folded
	}
	return res
}
