package core

// importexport.go orchestrates file import and export.
//
// Import flow:
//  1. ReadGrid parses the bytes into a RawGrid (ParseError on failure)
//  2. Inferrer.Infer derives the schema and projects the data rows
//  3. CoerceRow converts every projected row into typed fields
//
// Schema and records come from the same pass over the same grid, so an
// imported dataset is always internally consistent.
//
// Export renders every record through RenderRow using the dataset's current
// schema, with each column's current name as its header.

import (
	"strings"

	"github.com/google/uuid"
)

// ImportResult is the outcome of a successful import.
type ImportResult struct {
	Format   FileFormat
	Schema   []ColumnSchema
	Records  []Record
	Warnings []CoercionWarning // Cells stored as nil because they did not parse
	Empty    bool              // The sheet had no header row
}

// Importer turns spreadsheet bytes into a schema and records.
type Importer struct {
	inferrer *Inferrer
	newID    func() string
}

// NewImporter creates an Importer. A nil inferrer uses random id suffixes.
func NewImporter(inferrer *Inferrer) *Importer {
	if inferrer == nil {
		inferrer = NewInferrer(nil)
	}
	return &Importer{inferrer: inferrer, newID: uuid.NewString}
}

// Import parses data into a fresh schema and record set.
//
// Unparsable bytes return a *ParseError and no result. A sheet without a
// header row returns an empty, valid result together with ErrEmptyFile; that
// case is not a failure and callers should apply the result.
func (im *Importer) Import(data []byte, hint string) (*ImportResult, error) {
	grid, format, err := ReadGrid(data, hint)
	if err != nil {
		return nil, err
	}

	if len(grid) == 0 {
		return &ImportResult{
			Format:  format,
			Schema:  []ColumnSchema{},
			Records: []Record{},
			Empty:   true,
		}, ErrEmptyFile
	}

	inf := im.inferrer.Infer(grid)

	result := &ImportResult{
		Format:  format,
		Schema:  inf.Schema,
		Records: make([]Record, len(inf.Rows)),
	}
	for r, row := range inf.Rows {
		fields, warnings := CoerceRow(row, inf.Schema)
		for _, w := range warnings {
			w.Row = r + 1
			result.Warnings = append(result.Warnings, w)
		}
		result.Records[r] = Record{ID: im.newID(), Fields: fields}
	}
	return result, nil
}

// ExportFile serialises d into format.
func ExportFile(d Dataset, format FileFormat) ([]byte, error) {
	header := make([]string, len(d.Schema))
	for i, col := range d.Schema {
		header[i] = col.Name
	}

	rows := make([][]string, len(d.Records))
	for i, rec := range d.Records {
		rows[i] = RenderRow(rec, d.Schema)
	}

	return WriteGrid(format, d.Name, d.Schema, header, rows)
}

// ExportFileName returns the download name for an export of the named dataset,
// e.g. "Inam_Maniyachi_land_records.xlsx".
func ExportFileName(name string, format FileFormat) string {
	base := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	if base == "" {
		base = "village"
	}
	return base + "_land_records." + format.Extension()
}
