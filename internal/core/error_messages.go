// Package core provides the dataset engine for land record management.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to office staff
// for faster diagnosis.
//
// # Identity Errors (NF001-NF099)
//
//	NF001 - Not found: The village or record no longer exists
//	        Action: Reload the list; it may have been deleted elsewhere
//	        Match: errors.Is(err, ErrNotFound)
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum size limit
//	          Action: Split the file into smaller sheets
//	          Patterns: "file too large"
//
//	FILE002 - Unsupported format: Only .xlsx, .csv and .tsv files can be imported
//	          Action: Save the sheet as an Excel workbook or CSV and try again
//	          Match: errors.Is(err, ErrUnsupportedFormat)
//
//	FILE003 - Unreadable file: The file is corrupted or not a spreadsheet
//	          Action: Open the file in a spreadsheet program and save it again
//	          Match: errors.As(err, *ParseError)
//
//	FILE004 - No file: No file was selected
//	          Action: Please select a file to import
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The sheet has no header row
//	          Action: Add a header row naming each column
//	          Match: errors.Is(err, ErrEmptyFile)
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid number: A number column received text
//	         Action: Enter digits only, for example 1500 or 12.5
//	         Patterns: "invalid number"
//
//	VAL002 - Unknown column: The column is not part of this village's sheet
//	         Action: Reload the village; its columns may have changed
//	         Match: errors.Is(err, ErrUnknownColumn)
//
//	VAL003 - Invalid input: A required value is missing or malformed
//	         Action: Check the highlighted fields and try again
//	         Match: errors.Is(err, ErrInvalidInput)
//
// # Sync Errors (SYNC001-SYNC099)
//
//	SYNC001 - Save failed: Your changes could not be saved yet
//	          Action: Your edits are kept; retry saving in a moment
//	          Match: errors.As(err, *SyncError)
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB002 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB003 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
// # Extraction Errors (EXT001-EXT099)
//
//	EXT001 - Assistant unavailable: AI-assisted entry is not configured
//	         Match: errors.Is(err, ErrExtractorUnavailable)
//
//	EXT002 - Could not understand: The text could not be turned into a record
//	         Match: errors.Is(err, ErrExtractionFailed)
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled: context.Canceled
//	REQ002 - Request timeout: context.DeadlineExceeded
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
//	RATE002 - Import busy: Too many files are being imported at once
//	          Match: errors.Is(err, ErrTooManyImports)
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the technical error.
//
// # Matching Order
//
// Typed matches (errors.Is / errors.As) are checked first, in table order, so a
// SyncError wrapping ErrNotFound reports NF001. String patterns are then
// matched case-insensitively using strings.Contains; the first match wins.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorMatch maps an error identity to a user message.
type errorMatch struct {
	match func(error) bool
	msg   UserMessage
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

var errorMatches = []errorMatch{
	{
		match: is(ErrNotFound),
		msg: UserMessage{
			Message: "The village or record no longer exists",
			Action:  "Reload the list; it may have been deleted elsewhere",
			Code:    "NF001",
		},
	},
	{
		match: is(ErrUnsupportedFormat),
		msg: UserMessage{
			Message: "Only .xlsx, .csv and .tsv files can be imported",
			Action:  "Save the sheet as an Excel workbook or CSV and try again",
			Code:    "FILE002",
		},
	},
	{
		match: func(err error) bool {
			var pe *ParseError
			return errors.As(err, &pe)
		},
		msg: UserMessage{
			Message: "The file is corrupted or not a spreadsheet",
			Action:  "Open the file in a spreadsheet program and save it again",
			Code:    "FILE003",
		},
	},
	{
		match: is(ErrEmptyFile),
		msg: UserMessage{
			Message: "The sheet has no header row",
			Action:  "Add a header row naming each column",
			Code:    "FILE005",
		},
	},
	{
		match: is(ErrUnknownColumn),
		msg: UserMessage{
			Message: "The column is not part of this village's sheet",
			Action:  "Reload the village; its columns may have changed",
			Code:    "VAL002",
		},
	},
	{
		match: is(ErrInvalidInput),
		msg: UserMessage{
			Message: "A required value is missing or malformed",
			Action:  "Check the highlighted fields and try again",
			Code:    "VAL003",
		},
	},
	{
		match: is(ErrExtractorUnavailable),
		msg: UserMessage{
			Message: "AI-assisted entry is not configured",
			Action:  "Add the record manually or ask an administrator to configure the assistant",
			Code:    "EXT001",
		},
	},
	{
		match: is(ErrExtractionFailed),
		msg: UserMessage{
			Message: "The text could not be turned into a record",
			Action:  "Try rephrasing the details and submit again",
			Code:    "EXT002",
		},
	},
	{
		match: func(err error) bool {
			var se *SyncError
			return errors.As(err, &se)
		},
		msg: UserMessage{
			Message: "Your changes could not be saved yet",
			Action:  "Your edits are kept; retry saving in a moment",
			Code:    "SYNC001",
		},
	},
	{
		match: is(ErrTooManyImports),
		msg: UserMessage{
			Message: "Too many files are being imported at once",
			Action:  "Wait a few seconds and import again",
			Code:    "RATE002",
		},
	},
	{
		match: is(context.Canceled),
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		match: is(context.DeadlineExceeded),
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Check your connection and try again",
			Code:    "REQ002",
		},
	},
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller sheets",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "A number column received text",
			Action:  "Enter digits only, for example 1500 or 12.5",
			Code:    "VAL001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed matches are tried first, then text patterns, then the ERR000 fallback.
//
// Example:
//
//	err := fmt.Errorf("load village: %w", ErrNotFound)
//	msg := MapError(err)
//	// msg.Code == "NF001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, em := range errorMatches {
		if em.match(err) {
			return em.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
