package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeStore is an in-package Store for service and sync tests.
type fakeStore struct {
	mu       sync.Mutex
	data     map[string]Dataset
	seq      int
	replaces int

	failReplace error
	block       chan struct{} // when set, Replace waits for a receive
	entered     chan struct{} // when set, Replace signals entry

	failDelete error
	onDelete   func() // runs before Delete takes the lock
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]Dataset)}
}

func (f *fakeStore) put(d Dataset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[d.Key] = d.Clone()
}

func (f *fakeStore) get(key string) Dataset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key].Clone()
}

func (f *fakeStore) replaceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replaces
}

func (f *fakeStore) setFail(err error) {
	f.mu.Lock()
	f.failReplace = err
	f.mu.Unlock()
}

func (f *fakeStore) List(ctx context.Context) ([]Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Dataset, 0, len(f.data))
	for _, d := range f.data {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) Load(ctx context.Context, key string) (*Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", key, ErrNotFound)
	}
	out := d.Clone()
	return &out, nil
}

func (f *fakeStore) Replace(ctx context.Context, key string, u Update) (*Dataset, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	if f.failReplace != nil {
		return nil, f.failReplace
	}
	d, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", key, ErrNotFound)
	}
	upd := Dataset{Schema: u.Schema, Records: u.Records}.Clone()
	if u.Schema != nil {
		d.Schema = upd.Schema
	}
	if u.Records != nil {
		d.Records = upd.Records
	}
	d.UpdatedAt = d.UpdatedAt.Add(time.Second)
	f.data[key] = d
	out := d.Clone()
	return &out, nil
}

func (f *fakeStore) Create(ctx context.Context, d Dataset) (*Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	d = d.Clone()
	d.Key = fmt.Sprintf("ds-%03d", f.seq)
	d.CreatedAt = time.Date(2024, 1, 1, 0, 0, f.seq, 0, time.UTC)
	d.UpdatedAt = d.CreatedAt
	f.data[d.Key] = d
	out := d.Clone()
	return &out, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	if f.onDelete != nil {
		f.onDelete()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.data[key]; !ok {
		return fmt.Errorf("dataset %s: %w", key, ErrNotFound)
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data), nil
}

// sampleDataset is a two-column, two-record dataset.
func sampleDataset() Dataset {
	return Dataset{
		Key:         "kovilpatti",
		Name:        "Kovilpatti",
		DisplayName: "கோவில்பட்டி",
		Schema: []ColumnSchema{
			{ID: "areaName", Name: "Area Name", Type: ColumnText},
			{ID: "valuePerSqm", Name: "Value", Type: ColumnNumber},
		},
		Records: []Record{
			{ID: "r1", Fields: map[string]any{"areaName": "Main Bazaar", "valuePerSqm": 1500.0}},
			{ID: "r2", Fields: map[string]any{"areaName": "Station Road"}},
		},
	}
}
