// Package core provides the dataset engine for land record management.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ColumnType is the value kind of a column.
type ColumnType string

const (
	ColumnText   ColumnType = "text"
	ColumnNumber ColumnType = "number"
)

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	return t == ColumnText || t == ColumnNumber
}

// ColumnSchema describes one field of a dataset.
// ID is immutable once assigned; renaming a column only changes Name.
type ColumnSchema struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Record is one row of a dataset. Fields is keyed by column id.
//
// Values are string for text columns and float64 for number columns.
// A number field may also hold nil when an imported cell was empty or
// could not be parsed.
type Record struct {
	ID     string
	Fields map[string]any
}

// MarshalJSON flattens the record into {"id": ..., "<columnID>": value, ...}.
func (r Record) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if k != "id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"id":`)
	buf.Write(id)

	for _, k := range keys {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flattened form written by MarshalJSON.
// Numbers decode as float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.ID = ""
	if id, ok := raw["id"].(string); ok {
		r.ID = id
	}
	delete(raw, "id")
	r.Fields = raw
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields}
}

// Dataset is the tabular land record set of one village.
type Dataset struct {
	Key         string         `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"nameTamil"`
	Schema      []ColumnSchema `json:"columns"`
	Records     []Record       `json:"records"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of the dataset, safe to hand to another goroutine.
// Schema and Records of the copy are never nil, so a cloned snapshot always
// replaces both parts when sent as an Update.
func (d Dataset) Clone() Dataset {
	out := d
	out.Schema = make([]ColumnSchema, len(d.Schema))
	copy(out.Schema, d.Schema)
	out.Records = make([]Record, len(d.Records))
	for i, rec := range d.Records {
		out.Records[i] = rec.Clone()
	}
	return out
}

// Column returns the schema entry with the given id.
func (d Dataset) Column(id string) (ColumnSchema, bool) {
	return findColumn(d.Schema, id)
}

// Summary is the catalogue view of a dataset, without its records.
type Summary struct {
	Key         string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"nameTamil"`
	Columns     int       `json:"columnCount"`
	Records     int       `json:"recordCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summarize returns the catalogue view of d.
func (d Dataset) Summarize() Summary {
	return Summary{
		Key:         d.Key,
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Columns:     len(d.Schema),
		Records:     len(d.Records),
		UpdatedAt:   d.UpdatedAt,
	}
}

// Update carries the fields a replace operation writes to the store.
// A nil Schema or Records leaves that part of the stored dataset untouched;
// a non-nil one replaces it wholesale.
type Update struct {
	Schema  []ColumnSchema
	Records []Record
}

// RawGrid is an untyped cell grid read from a spreadsheet file.
// Cells are nil, string, float64 or bool. Row 0 is the header row on import.
type RawGrid [][]any

// FileFormat identifies a spreadsheet container.
type FileFormat string

const (
	FormatWorkbook      FileFormat = "xlsx"
	FormatDelimitedText FileFormat = "csv"
	FormatTabSeparated  FileFormat = "tsv"
)

// Extension returns the file extension for the format, without the dot.
func (f FileFormat) Extension() string {
	return string(f)
}

// ContentType returns the MIME type used when serving an exported file.
func (f FileFormat) ContentType() string {
	switch f {
	case FormatWorkbook:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatTabSeparated:
		return "text/tab-separated-values; charset=utf-8"
	default:
		return "text/csv; charset=utf-8"
	}
}

// SyncState is the state of a dataset's sync controller.
type SyncState string

const (
	StateClean      SyncState = "clean"
	StateDirty      SyncState = "dirty"
	StateSaving     SyncState = "saving"
	StateSaveFailed SyncState = "save_failed"
)

// SyncStatus is a point-in-time view of a sync controller.
type SyncStatus struct {
	State      SyncState `json:"state"`
	Pending    bool      `json:"pending"`
	Pushes     int       `json:"pushes"`
	LastError  string    `json:"lastError,omitempty"`
	LastPushed time.Time `json:"lastPushed,omitempty"`
}
