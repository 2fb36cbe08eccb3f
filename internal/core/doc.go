// Package core provides the dataset engine for land record management.
//
// This package holds all domain logic independent of any transport or
// storage technology. Web handlers, stores and tests build on it without
// modification.
//
// # Architecture
//
// The package is organised around a few key concepts:
//
//   - Dataset: the tabular land record set of one village, with an ordered
//     column schema and records keyed by column id.
//   - Import/Export: spreadsheet bytes in, dataset out, and the inverse.
//   - Session: an open, editable dataset with its own sync controller.
//   - Service: the catalogue and the registry of open sessions.
//
// # Schema Inference
//
// Imported files carry no schema. [Inferrer.Infer] reads row 0 as the header
// and types every column from the data beneath it: a column is Number only
// when every non-blank cell in it parses as a number.
//
//	result, err := core.NewImporter(nil).Import(data, "survey.xlsx")
//	// result.Schema[0] == {ID: "surveynumber_3f9a1", Name: "Survey Number", Type: "text"}
//
// # Sync
//
// Edits apply to the session's [EditBuffer] immediately. The
// [SyncController] debounces them and pushes the full schema and record set
// to the [Store] once edits pause for the debounce interval. Only one push is
// in flight at a time; an edit made during a push is carried by the next one.
// Import bypasses the debounce and pushes synchronously.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - NF001: Dataset or record not found
//   - FILE001-FILE005: File errors (size, format, corruption, empty)
//   - VAL001-VAL003: Validation errors (numbers, columns, input)
//   - SYNC001: Push to the store failed
//   - EXT001-EXT002: AI-assisted entry errors
package core
