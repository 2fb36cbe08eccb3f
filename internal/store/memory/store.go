// Package memory provides an in-process core.Store.
//
// Data lives only as long as the process. It backs STORE_DRIVER=memory and
// tests across the module.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/google/uuid"
)

// Store is a mutex-guarded map of datasets.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]core.Dataset
	now      func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		datasets: make(map[string]core.Dataset),
		now:      time.Now,
	}
}

// List returns every dataset ordered by creation time, then name.
func (s *Store) List(ctx context.Context) ([]core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]core.Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Load(ctx context.Context, key string) (*core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[key]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", key, core.ErrNotFound)
	}
	d = d.Clone()
	return &d, nil
}

func (s *Store) Replace(ctx context.Context, key string, u core.Update) (*core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[key]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", key, core.ErrNotFound)
	}

	patch := core.Dataset{Schema: u.Schema, Records: u.Records}.Clone()
	if u.Schema != nil {
		d.Schema = patch.Schema
	}
	if u.Records != nil {
		d.Records = patch.Records
	}
	d.UpdatedAt = s.now()
	s.datasets[key] = d

	out := d.Clone()
	return &out, nil
}

func (s *Store) Create(ctx context.Context, d core.Dataset) (*core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d = d.Clone()
	if d.Key == "" {
		d.Key = uuid.NewString()
	}
	if d.Schema == nil {
		d.Schema = []core.ColumnSchema{}
	}
	if d.Records == nil {
		d.Records = []core.Record{}
	}
	now := s.now()
	d.CreatedAt = now
	d.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.datasets[d.Key]; exists {
		return nil, fmt.Errorf("dataset %s already exists", d.Key)
	}
	s.datasets[d.Key] = d

	out := d.Clone()
	return &out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[key]; !ok {
		return fmt.Errorf("dataset %s: %w", key, core.ErrNotFound)
	}
	delete(s.datasets, key)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets), nil
}
