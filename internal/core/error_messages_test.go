package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "wrapped not found maps by identity",
			err:         fmt.Errorf("load village abc: %w", ErrNotFound),
			wantCode:    "NF001",
			wantMessage: "The village or record no longer exists",
		},
		{
			name:        "sync error wrapping not found reports not found",
			err:         &SyncError{Key: "abc", Err: ErrNotFound},
			wantCode:    "NF001",
			wantMessage: "The village or record no longer exists",
		},
		{
			name:        "sync error reports save failed",
			err:         &SyncError{Key: "abc", Err: errors.New("store offline")},
			wantCode:    "SYNC001",
			wantMessage: "Your changes could not be saved yet",
		},
		{
			name:        "unsupported format beats generic parse error",
			err:         &ParseError{Err: ErrUnsupportedFormat},
			wantCode:    "FILE002",
			wantMessage: "Only .xlsx, .csv and .tsv files can be imported",
		},
		{
			name:        "parse error maps to unreadable file",
			err:         &ParseError{Format: FormatWorkbook, Err: errors.New("zip: not a valid zip file")},
			wantCode:    "FILE003",
			wantMessage: "The file is corrupted or not a spreadsheet",
		},
		{
			name:        "empty file",
			err:         ErrEmptyFile,
			wantCode:    "FILE005",
			wantMessage: "The sheet has no header row",
		},
		{
			name:        "unknown column",
			err:         fmt.Errorf("set field: %w", ErrUnknownColumn),
			wantCode:    "VAL002",
			wantMessage: "The column is not part of this village's sheet",
		},
		{
			name:        "extractor unavailable",
			err:         ErrExtractorUnavailable,
			wantCode:    "EXT001",
			wantMessage: "AI-assisted entry is not configured",
		},
		{
			name:        "deadline exceeded",
			err:         fmt.Errorf("push: %w", context.DeadlineExceeded),
			wantCode:    "REQ002",
			wantMessage: "Request timed out",
		},
		{
			name:        "connection refused pattern",
			err:         errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			wantCode:    "DB001",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "file too large pattern",
			err:         errors.New("file too large: 200MB exceeds limit"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds the maximum size limit",
		},
		{
			name:        "rate limit pattern",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("CONNECTION RESET by peer"),
			wantCode:    "DB002",
			wantMessage: "Database connection was interrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrEmptyFile)

	expected := "The sheet has no header row (Code: FILE005). Add a header row naming each column"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  ErrNotFound,
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("delete village: %w", ErrNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "The village or record no longer exists" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}

		if !errors.Is(userErr, ErrNotFound) {
			t.Error("Unwrap() should expose the original error chain")
		}
	})
}
