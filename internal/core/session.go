package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Session is an open editing session on one dataset. Edits apply to the
// session's buffer at once and reach the store through its sync controller.
type Session struct {
	key  string
	buf  *EditBuffer
	ctrl *SyncController
	svc  *Service

	mu       sync.Mutex
	lastUsed time.Time
}

// Key returns the dataset key.
func (s *Session) Key() string { return s.key }

// Snapshot returns a copy of the dataset as currently edited.
func (s *Session) Snapshot() Dataset {
	s.touch()
	return s.buf.Snapshot()
}

// Status reports the sync state of the session.
func (s *Session) Status() SyncStatus {
	return s.ctrl.Status()
}

// SetField edits one field of one record.
func (s *Session) SetField(recordID, columnID string, value any) error {
	s.touch()
	if err := s.buf.SetField(recordID, columnID, value); err != nil {
		return err
	}
	s.ctrl.MarkDirty()
	return nil
}

// UpdateRecord edits several fields of one record at once. Nothing changes
// if any value is rejected.
func (s *Session) UpdateRecord(recordID string, fields map[string]any) (Record, error) {
	s.touch()
	rec, err := s.buf.UpdateFields(recordID, fields)
	if err != nil {
		return Record{}, err
	}
	if len(fields) > 0 {
		s.ctrl.MarkDirty()
	}
	return rec, nil
}

// AddRecord appends a record filled from the column defaults and fields.
func (s *Session) AddRecord(fields map[string]any) (Record, error) {
	s.touch()
	rec, err := s.buf.AddRecord(fields)
	if err != nil {
		return Record{}, err
	}
	s.ctrl.MarkDirty()
	return rec, nil
}

// NewRecordTemplate returns default field values for the current schema.
func (s *Session) NewRecordTemplate() map[string]any {
	return NewRecordTemplate(s.buf.Schema())
}

// DeleteRecord removes one record.
func (s *Session) DeleteRecord(recordID string) error {
	s.touch()
	if err := s.buf.DeleteRecord(recordID); err != nil {
		return err
	}
	s.ctrl.MarkDirty()
	return nil
}

// RenameColumn changes a column's display name.
func (s *Session) RenameColumn(columnID, name string) error {
	s.touch()
	if err := s.buf.RenameColumn(columnID, name); err != nil {
		return err
	}
	s.ctrl.MarkDirty()
	return nil
}

// AddColumn appends a column and back-fills every record with its default.
func (s *Session) AddColumn(name string, t ColumnType) (ColumnSchema, error) {
	s.touch()
	col, err := s.buf.AddColumn(name, t)
	if err != nil {
		return ColumnSchema{}, err
	}
	s.ctrl.MarkDirty()
	return col, nil
}

// Import replaces the dataset's schema and records with the contents of a
// spreadsheet file and pushes the result immediately.
//
// The file is fully parsed before anything changes: a ParseError leaves the
// session untouched. A sheet with no header row is not an error and clears
// the dataset, with result.Empty set. A failed push returns the result
// together with a *SyncError; the imported data stays in the session and is
// retried by the next flush.
func (s *Session) Import(ctx context.Context, data []byte, hint string) (*ImportResult, error) {
	s.touch()
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if limit := s.svc.cfg.MaxFileSize; limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%d bytes (max %d): %w", len(data), limit, ErrFileTooLarge)
	}

	if err := s.svc.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	result, err := s.svc.importer.Import(data, hint)
	s.svc.limiter.Release()

	if err != nil && !errors.Is(err, ErrEmptyFile) {
		return nil, err
	}

	log := slog.With("dataset", s.key, "format", result.Format)
	if len(result.Warnings) > 0 {
		log.Warn("import coerced invalid cells to empty", "cells", len(result.Warnings))
	}

	start := time.Now()
	if err := s.ctrl.ReplaceAndPush(ctx, result.Schema, result.Records); err != nil {
		return result, err
	}
	log.Info("dataset imported",
		"columns", len(result.Schema),
		"records", len(result.Records),
		"empty", result.Empty,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Export serialises the dataset as currently edited. It returns the file
// bytes and the suggested download name.
func (s *Session) Export(format FileFormat) ([]byte, string, error) {
	s.touch()
	d := s.buf.Snapshot()
	data, err := ExportFile(d, format)
	if err != nil {
		return nil, "", fmt.Errorf("export %s: %w", d.Name, err)
	}
	return data, ExportFileName(d.Name, format), nil
}

// Extract asks the configured extractor to fill a record from free text.
// The result is a prefilled template conforming to the schema; it is not
// added to the dataset.
func (s *Session) Extract(ctx context.Context, text string) (map[string]any, error) {
	s.touch()
	ex := s.svc.cfg.Extractor
	if ex == nil {
		return nil, ErrExtractorUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required: %w", ErrInvalidInput)
	}

	schema := s.buf.Schema()
	fields, err := ex.Extract(ctx, text, schema)
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	return NormaliseExtracted(fields, schema), nil
}

// Flush pushes unsaved edits now. It also retries a failed push.
func (s *Session) Flush(ctx context.Context) error {
	s.touch()
	return s.ctrl.Flush(ctx)
}

func (s *Session) touch() {
	now := s.svc.cfg.Clock.Now()
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
