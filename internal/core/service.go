package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/landrecords/internal/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig tunes a Service. Zero values fall back to defaults.
type ServiceConfig struct {
	Debounce    time.Duration // Sync quiet period (default 500ms)
	PushTimeout time.Duration // Deadline for one push to the store
	SessionTTL  time.Duration // Idle time after which the janitor closes a session
	Seed        bool          // Insert the initial catalogue into an empty store

	MaxFileSize int64         // Largest accepted import, in bytes; 0 means no limit
	MaxImports  int           // Parallel import parses
	ImportWait  time.Duration // Wait for an import slot

	Extractor FieldExtractor // Optional; Extract fails without one
	Clock     clock.Clock
}

// DefaultSessionTTL is used when ServiceConfig.SessionTTL is zero.
const DefaultSessionTTL = 30 * time.Minute

// Service provides the dataset catalogue and editing sessions.
type Service struct {
	store    Store
	cfg      ServiceConfig
	importer *Importer
	limiter  *ImportLimiter

	loads  singleflight.Group
	seeded sync.Once

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a Service over store.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		store:    store,
		cfg:      cfg,
		importer: NewImporter(nil),
		limiter:  NewImportLimiter(cfg.MaxImports, cfg.ImportWait),
		sessions: make(map[string]*Session),
	}
}

// ListDatasets returns the catalogue. On the first call with seeding enabled
// an empty store is filled with the initial villages; a seeding failure is
// logged and the list is still returned.
func (s *Service) ListDatasets(ctx context.Context) ([]Summary, error) {
	if s.cfg.Seed {
		s.seeded.Do(func() {
			if _, err := SeedIfEmpty(ctx, s.store, uuid.NewString); err != nil {
				slog.Error("seed catalogue failed", "error", err)
			}
		})
	}

	datasets, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	out := make([]Summary, len(datasets))
	for i, d := range datasets {
		if sess := s.session(d.Key); sess != nil {
			d = sess.buf.Snapshot()
		}
		out[i] = d.Summarize()
	}
	return out, nil
}

// FilterSummaries returns the villages whose English or Tamil name contains
// q, ignoring case. A blank q returns list unchanged.
func FilterSummaries(list []Summary, q string) []Summary {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return list
	}
	out := make([]Summary, 0, len(list))
	for _, s := range list {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.DisplayName), q) {
			out = append(out, s)
		}
	}
	return out
}

// CreateDataset stores a new dataset with the default schema and no records.
// Both names are required.
func (s *Service) CreateDataset(ctx context.Context, name, displayName string) (*Dataset, error) {
	name = strings.TrimSpace(name)
	displayName = strings.TrimSpace(displayName)
	if name == "" || displayName == "" {
		return nil, fmt.Errorf("name and display name are required: %w", ErrInvalidInput)
	}

	d, err := s.store.Create(ctx, Dataset{
		Name:        name,
		DisplayName: displayName,
		Schema:      DefaultSchema(),
		Records:     []Record{},
	})
	if err != nil {
		return nil, fmt.Errorf("create dataset %s: %w", name, err)
	}
	slog.Info("dataset created", "dataset", d.Key, "name", d.Name)
	return d, nil
}

// GetDataset returns the dataset as currently edited if a session is open,
// and as stored otherwise.
func (s *Service) GetDataset(ctx context.Context, key string) (*Dataset, error) {
	if sess := s.session(key); sess != nil {
		d := sess.Snapshot()
		return &d, nil
	}
	d, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", key, err)
	}
	return d, nil
}

// DeleteDataset removes a dataset from the store. The local session is
// discarded only once the store confirms the delete.
func (s *Service) DeleteDataset(ctx context.Context, key string) error {
	// No debounced push may reach the store while the delete is in flight.
	if sess := s.session(key); sess != nil {
		if err := sess.ctrl.Suspend(ctx); err != nil {
			sess.ctrl.Resume()
			return fmt.Errorf("delete dataset %s: %w", key, err)
		}
		defer sess.ctrl.Resume()
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete dataset %s: %w", key, err)
	}

	s.mu.Lock()
	sess := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if sess != nil {
		sess.ctrl.Close()
	}
	slog.Info("dataset deleted", "dataset", key)
	return nil
}

// Open returns the editing session for key, loading the dataset from the
// store on first use. Concurrent opens of the same key share one load.
func (s *Service) Open(ctx context.Context, key string) (*Session, error) {
	if sess := s.session(key); sess != nil {
		sess.touch()
		return sess, nil
	}

	v, err, _ := s.loads.Do(key, func() (any, error) {
		if sess := s.session(key); sess != nil {
			return sess, nil
		}

		d, err := s.store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load dataset %s: %w", key, err)
		}

		sess := s.newSession(*d)
		s.mu.Lock()
		s.sessions[key] = sess
		s.mu.Unlock()

		slog.Debug("session opened", "dataset", key, "records", len(d.Records))
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (s *Service) newSession(d Dataset) *Session {
	buf := NewEditBuffer(d)
	key := d.Key
	sess := &Session{key: key, buf: buf, svc: s}
	sess.ctrl = NewSyncController(buf, s.store, SyncOptions{
		Debounce:    s.cfg.Debounce,
		PushTimeout: s.cfg.PushTimeout,
		Clock:       s.cfg.Clock,
	})
	sess.touch()
	return sess
}

func (s *Service) session(key string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[key]
}

// SessionCount returns the number of open sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CloseSession flushes and discards the session for key. If the flush
// fails the session stays open so no edit is lost.
func (s *Service) CloseSession(ctx context.Context, key string) error {
	sess := s.session(key)
	if sess == nil {
		return nil
	}
	if err := sess.ctrl.Flush(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.sessions[key] == sess {
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	sess.ctrl.Close()
	slog.Debug("session closed", "dataset", key)
	return nil
}

// closeIdle closes every session unused for longer than ttl. It returns the
// number closed.
func (s *Service) closeIdle(ctx context.Context, ttl time.Duration) int {
	cutoff := s.cfg.Clock.Now().Add(-ttl)

	s.mu.RLock()
	var idle []string
	for key, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, key)
		}
	}
	s.mu.RUnlock()

	closed := 0
	for _, key := range idle {
		if err := s.CloseSession(ctx, key); err != nil {
			slog.Warn("idle session kept: flush failed", "dataset", key, "error", err)
			continue
		}
		closed++
	}
	return closed
}

// Shutdown flushes every open session in parallel and closes them. It
// returns the first flush error; sessions that failed to flush are still
// closed so the process can exit.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	// One failed flush must not cancel the others.
	var g errgroup.Group
	for _, sess := range sessions {
		g.Go(func() error {
			defer sess.ctrl.Close()
			if err := sess.ctrl.Flush(ctx); err != nil {
				slog.Error("flush on shutdown failed", "dataset", sess.key, "error", err)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("sessions flushed", "sessions", len(sessions))
	return nil
}

// Ping checks that the store answers.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.store.Count(ctx)
	return err
}
