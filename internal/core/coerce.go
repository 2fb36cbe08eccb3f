package core

// coerce.go converts between untyped spreadsheet cells and typed record fields.
//
// Number columns hold float64 values. An imported cell that is blank or does
// not parse is stored as nil rather than failing, so one bad cell never aborts
// an import. Text columns hold the textual form of whatever the cell held.
//
// RenderRow is the single inverse used both for display and for file export.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a plain decimal number.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// isBlank reports whether a raw cell carries no value.
func isBlank(cell any) bool {
	switch v := cell.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// ParseNumber interprets a raw cell as a number.
// Booleans are never numbers. Strings must match a plain decimal form after
// trimming surrounding whitespace; currency symbols and separators are text.
func ParseNumber(cell any) (float64, bool) {
	switch v := cell.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return ParseNumber(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		s := strings.TrimSpace(v)
		if !numericRegex.MatchString(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FormatNumber renders a number in its shortest exact decimal form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RenderCell returns the display text of a field value. nil renders as "".
func RenderCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return FormatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// CoerceCell converts one raw cell to the representation required by col.
// ok is false when a non-blank cell failed to parse as a number; the returned
// value is then nil.
func CoerceCell(cell any, col ColumnSchema) (value any, ok bool) {
	if col.Type == ColumnNumber {
		if isBlank(cell) {
			return nil, true
		}
		f, parsed := ParseNumber(cell)
		if !parsed {
			return nil, false
		}
		return f, true
	}
	return RenderCell(cell), true
}

// CoerceRow converts a raw row into typed fields. Cell i of row corresponds
// to schema[i]; cells past the end of a short row are treated as blank.
// It never fails: malformed numbers are stored as nil and reported as
// warnings with Row left zero for the caller to fill in.
func CoerceRow(row []any, schema []ColumnSchema) (map[string]any, []CoercionWarning) {
	fields := make(map[string]any, len(schema))
	var warnings []CoercionWarning

	for i, col := range schema {
		var cell any
		if i < len(row) {
			cell = row[i]
		}
		v, ok := CoerceCell(cell, col)
		if !ok {
			warnings = append(warnings, CoercionWarning{Column: col.ID, Value: RenderCell(cell)})
		}
		fields[col.ID] = v
	}
	return fields, warnings
}

// RenderRow renders a record's fields in schema display order.
// Missing and nil values render as "".
func RenderRow(rec Record, schema []ColumnSchema) []string {
	out := make([]string, len(schema))
	for i, col := range schema {
		out[i] = RenderCell(rec.Fields[col.ID])
	}
	return out
}

// DefaultValue is the starting value of a new field of type t.
func DefaultValue(t ColumnType) any {
	if t == ColumnNumber {
		return float64(0)
	}
	return ""
}

// NewRecordTemplate returns a field map holding the default for every column.
func NewRecordTemplate(schema []ColumnSchema) map[string]any {
	fields := make(map[string]any, len(schema))
	for _, col := range schema {
		fields[col.ID] = DefaultValue(col.Type)
	}
	return fields
}

// CoerceEdit converts a value typed by a user into col's representation.
// Blank input into a number column becomes 0; text that is not a number is
// rejected so the edit can be reported instead of silently zeroed.
func CoerceEdit(value any, col ColumnSchema) (any, error) {
	if col.Type != ColumnNumber {
		return RenderCell(value), nil
	}
	if isBlank(value) {
		return float64(0), nil
	}
	f, ok := ParseNumber(value)
	if !ok {
		return nil, fmt.Errorf("column %s: invalid number %q: %w", col.ID, RenderCell(value), ErrInvalidInput)
	}
	return f, nil
}

// NormaliseExtracted conforms an extractor's field map to schema.
// Keys outside the schema are dropped, numeric text is parsed (unparsable
// numbers become 0), and every omitted column receives its default.
func NormaliseExtracted(fields map[string]any, schema []ColumnSchema) map[string]any {
	out := NewRecordTemplate(schema)
	for _, col := range schema {
		v, present := fields[col.ID]
		if !present || v == nil {
			continue
		}
		if col.Type == ColumnNumber {
			if f, ok := ParseNumber(v); ok {
				out[col.ID] = f
			}
			continue
		}
		out[col.ID] = RenderCell(v)
	}
	return out
}
