package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EditBuffer holds the live dataset of an editing session.
//
// Mutations apply immediately and never wait on the remote store. Every
// record always carries a value for every schema column: new records start
// from the column defaults and added columns are back-filled.
type EditBuffer struct {
	mu    sync.RWMutex
	ds    Dataset
	ids   *Inferrer
	newID func() string
}

// NewEditBuffer creates a buffer owning a copy of d.
func NewEditBuffer(d Dataset) *EditBuffer {
	d = d.Clone()
	for i := range d.Records {
		fillDefaults(d.Records[i].Fields, d.Schema)
	}
	return &EditBuffer{
		ds:    d,
		ids:   NewInferrer(nil),
		newID: uuid.NewString,
	}
}

// Key returns the dataset key.
func (b *EditBuffer) Key() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ds.Key
}

// Snapshot returns a deep copy of the current dataset.
func (b *EditBuffer) Snapshot() Dataset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ds.Clone()
}

// Schema returns a copy of the current schema.
func (b *EditBuffer) Schema() []ColumnSchema {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ColumnSchema(nil), b.ds.Schema...)
}

// SetField sets one field of one record. The value is coerced to the
// column's type; a number column rejects non-numeric text.
func (b *EditBuffer) SetField(recordID, columnID string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, ok := findColumn(b.ds.Schema, columnID)
	if !ok {
		return fmt.Errorf("column %s: %w", columnID, ErrUnknownColumn)
	}
	i := b.indexOf(recordID)
	if i < 0 {
		return fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}

	v, err := CoerceEdit(value, col)
	if err != nil {
		return err
	}
	b.ds.Records[i].Fields[columnID] = v
	return nil
}

// UpdateFields sets several fields of one record. Every value is checked
// before any is written, so a rejected value leaves the record unchanged.
func (b *EditBuffer) UpdateFields(recordID string, fields map[string]any) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(recordID)
	if i < 0 {
		return Record{}, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}

	coerced := make(map[string]any, len(fields))
	for k, v := range fields {
		col, ok := findColumn(b.ds.Schema, k)
		if !ok {
			return Record{}, fmt.Errorf("column %s: %w", k, ErrUnknownColumn)
		}
		c, err := CoerceEdit(v, col)
		if err != nil {
			return Record{}, err
		}
		coerced[k] = c
	}

	for k, v := range coerced {
		b.ds.Records[i].Fields[k] = v
	}
	return b.ds.Records[i].Clone(), nil
}

// AddRecord appends a record built from the column defaults overlaid with
// fields. Keys outside the schema are rejected.
func (b *EditBuffer) AddRecord(fields map[string]any) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := Record{ID: b.newID(), Fields: NewRecordTemplate(b.ds.Schema)}
	for k, v := range fields {
		col, ok := findColumn(b.ds.Schema, k)
		if !ok {
			return Record{}, fmt.Errorf("column %s: %w", k, ErrUnknownColumn)
		}
		coerced, err := CoerceEdit(v, col)
		if err != nil {
			return Record{}, err
		}
		rec.Fields[k] = coerced
	}

	b.ds.Records = append(b.ds.Records, rec)
	return rec.Clone(), nil
}

// DeleteRecord removes a record, preserving the order of the others.
func (b *EditBuffer) DeleteRecord(recordID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(recordID)
	if i < 0 {
		return fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	b.ds.Records = append(b.ds.Records[:i], b.ds.Records[i+1:]...)
	return nil
}

// RenameColumn changes a column's display name. Its id never changes.
func (b *EditBuffer) RenameColumn(columnID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("column name is required: %w", ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.ds.Schema {
		if b.ds.Schema[i].ID == columnID {
			b.ds.Schema[i].Name = name
			return nil
		}
	}
	return fmt.Errorf("column %s: %w", columnID, ErrUnknownColumn)
}

// AddColumn appends a column with a fresh id and gives every existing
// record the type's default value.
func (b *EditBuffer) AddColumn(name string, t ColumnType) (ColumnSchema, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ColumnSchema{}, fmt.Errorf("column name is required: %w", ErrInvalidInput)
	}
	if !t.Valid() {
		return ColumnSchema{}, fmt.Errorf("column type %q: %w", t, ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	used := make(map[string]bool, len(b.ds.Schema))
	for _, col := range b.ds.Schema {
		used[col.ID] = true
	}
	col := ColumnSchema{ID: b.ids.uniqueID(name, used), Name: name, Type: t}

	b.ds.Schema = append(b.ds.Schema, col)
	for i := range b.ds.Records {
		b.ds.Records[i].Fields[col.ID] = DefaultValue(t)
	}
	return col, nil
}

// Replace swaps in a new schema and record set wholesale.
func (b *EditBuffer) Replace(schema []ColumnSchema, records []Record) {
	d := Dataset{Schema: schema, Records: records}.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ds.Schema = d.Schema
	b.ds.Records = d.Records
}

// touch records the store's update time after a successful push.
func (b *EditBuffer) touch(updatedAt time.Time) {
	if updatedAt.IsZero() {
		return
	}
	b.mu.Lock()
	b.ds.UpdatedAt = updatedAt
	b.mu.Unlock()
}

func (b *EditBuffer) indexOf(recordID string) int {
	for i, rec := range b.ds.Records {
		if rec.ID == recordID {
			return i
		}
	}
	return -1
}

// fillDefaults gives every schema column a value in fields.
func fillDefaults(fields map[string]any, schema []ColumnSchema) {
	for _, col := range schema {
		if _, ok := fields[col.ID]; !ok {
			fields[col.ID] = DefaultValue(col.Type)
		}
	}
}
