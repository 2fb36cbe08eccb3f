package core

// gridio.go reads and writes spreadsheet containers as raw cell grids.
//
// Supported containers:
//   - Workbook (.xlsx, .xlsm): first sheet only, via excelize
//   - Delimited text (.csv comma, .tsv tab): UTF-8, BOM skipped, ragged rows allowed
//
// The engine never touches the filesystem; bytes go in and bytes come out.
// Workbooks are recognised by their zip signature regardless of the name hint.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1} // legacy .xls / .doc
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// maxSheetNameLen is the longest sheet name a workbook accepts.
const maxSheetNameLen = 31

// ParseFormat maps a format name or extension ("xlsx", ".csv", "tsv") to a FileFormat.
func ParseFormat(s string) (FileFormat, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "xlsx", "xlsm", "workbook":
		return FormatWorkbook, nil
	case "csv", "txt":
		return FormatDelimitedText, nil
	case "tsv", "tab":
		return FormatTabSeparated, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnsupportedFormat)
	}
}

// DetectFormat decides which container data holds. hint is a file name or
// extension and may be empty. Content signatures win over the hint.
func DetectFormat(hint string, data []byte) (FileFormat, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return FormatWorkbook, nil
	}
	if bytes.HasPrefix(data, oleMagic) {
		return "", ErrUnsupportedFormat
	}

	if ext := path.Ext(hint); ext != "" {
		return ParseFormat(ext)
	}
	if hint != "" && !strings.Contains(hint, ".") {
		if f, err := ParseFormat(hint); err == nil {
			return f, nil
		}
	}

	// No usable hint: plain UTF-8 text is treated as comma-separated.
	if utf8.Valid(bytes.TrimPrefix(data, utf8BOM)) {
		return FormatDelimitedText, nil
	}
	return "", ErrUnsupportedFormat
}

// ReadGrid parses data into a raw grid. Failures are returned as *ParseError.
func ReadGrid(data []byte, hint string) (RawGrid, FileFormat, error) {
	format, err := DetectFormat(hint, data)
	if err != nil {
		return nil, "", &ParseError{Err: err}
	}

	var grid RawGrid
	switch format {
	case FormatWorkbook:
		grid, err = readWorkbook(data)
	case FormatTabSeparated:
		grid, err = readDelimited(data, '\t')
	default:
		grid, err = readDelimited(data, ',')
	}
	if err != nil {
		return nil, format, &ParseError{Format: format, Err: err}
	}
	return grid, format, nil
}

// readWorkbook reads the first sheet of an xlsx workbook.
// Numeric cells become float64, boolean cells bool, everything else string.
func readWorkbook(data []byte) (RawGrid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	grid := make(RawGrid, len(rows))
	for r, row := range rows {
		cells := make([]any, len(row))
		for c, raw := range row {
			if raw == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			cellType, err := f.GetCellType(sheet, ref)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", ref, err)
			}
			cells[c] = typedWorkbookCell(raw, cellType)
		}
		grid[r] = cells
	}
	return grid, nil
}

// typedWorkbookCell converts a raw workbook value using its declared type.
// Cells without a type attribute are numbers in OOXML.
func typedWorkbookCell(raw string, cellType excelize.CellType) any {
	switch cellType {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	default:
		return raw
	}
}

// readDelimited reads comma or tab separated text. Invalid UTF-8 sequences
// are replaced with U+FFFD and empty cells become nil.
func readDelimited(data []byte, comma rune) (RawGrid, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.ToValidUTF8(data, []byte("\uFFFD"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}

	grid := make(RawGrid, len(records))
	for r, rec := range records {
		cells := make([]any, len(rec))
		for c, v := range rec {
			if v != "" {
				cells[c] = v
			}
		}
		grid[r] = cells
	}
	return grid, nil
}

// WriteGrid serialises a header and rendered rows into format.
// In workbooks, cells of number columns that parse are written as numbers so
// spreadsheet programs treat them numerically.
func WriteGrid(format FileFormat, sheetName string, schema []ColumnSchema, header []string, rows [][]string) ([]byte, error) {
	switch format {
	case FormatWorkbook:
		return writeWorkbook(sheetName, schema, header, rows)
	case FormatDelimitedText:
		return writeDelimited(',', header, rows)
	case FormatTabSeparated:
		return writeDelimited('\t', header, rows)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
}

func writeWorkbook(sheetName string, schema []ColumnSchema, header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	name := SheetName(sheetName)
	if name != "Sheet1" {
		if err := f.SetSheetName("Sheet1", name); err != nil {
			return nil, fmt.Errorf("name sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return nil, fmt.Errorf("open sheet writer: %w", err)
	}

	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := sw.SetRow("A1", headerCells); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for r, row := range rows {
		cells := make([]any, len(row))
		for c, v := range row {
			cells[c] = workbookCell(v, schema, c)
		}
		ref, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(ref, cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// workbookCell picks the cell value written for rendered text v in column c.
func workbookCell(v string, schema []ColumnSchema, c int) any {
	if v == "" {
		return nil
	}
	if c < len(schema) && schema[c].Type == ColumnNumber {
		if f, ok := ParseNumber(v); ok {
			return f
		}
	}
	return v
}

func writeDelimited(comma rune, header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	return buf.Bytes(), nil
}

// SheetName makes name acceptable as a worksheet name: forbidden characters
// become '_', the result is cut to 31 characters, and an empty name becomes
// "Sheet1".
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, "'")

	if utf8.RuneCountInString(name) > maxSheetNameLen {
		name = string([]rune(name)[:maxSheetNameLen])
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}
