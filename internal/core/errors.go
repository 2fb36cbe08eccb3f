package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a dataset or record id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat is wrapped by a ParseError when the bytes are not
	// a workbook or delimited text file.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoFile is returned when an import receives no bytes.
	ErrNoFile = errors.New("no file provided")

	// ErrFileTooLarge is returned when an upload exceeds the configured size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned alongside a valid, empty ImportResult when the
	// sheet has no header row. It is not a failure.
	ErrEmptyFile = errors.New("empty file")

	// ErrUnknownColumn is returned when an edit names a column id that is not
	// in the dataset's schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrInvalidInput is returned for malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtractorUnavailable is returned when no field extractor is configured.
	ErrExtractorUnavailable = errors.New("extractor unavailable")

	// ErrExtractionFailed is returned when the extractor produced no usable fields.
	ErrExtractionFailed = errors.New("extraction failed")
)

// ParseError reports file bytes that could not be read as a spreadsheet.
// No dataset is produced when import fails with a ParseError.
type ParseError struct {
	Format FileFormat // Format that was attempted; empty if undetectable
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("parse file: %v", e.Err)
	}
	return fmt.Sprintf("parse %s file: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CoercionWarning records a cell that did not parse under its column's type.
// The cell is stored as nil and the import continues.
type CoercionWarning struct {
	Row    int    // 1-based data row number (header excluded)
	Column string // Column id
	Value  string // Offending raw value
}

func (w CoercionWarning) Error() string {
	return fmt.Sprintf("row %d: column %s: invalid number %q", w.Row, w.Column, w.Value)
}

// SyncError reports a push to the remote store that was rejected or never
// arrived. The edit buffer is left untouched and the push can be retried.
type SyncError struct {
	Key string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync dataset %s: %v", e.Key, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
