package core

import "context"

// Store is the remote keyed store holding every dataset.
//
// Implementations must treat Replace as a whole-value overwrite scoped to one
// key: the last successful Replace wins and other keys are never touched.
type Store interface {
	// List returns every dataset ordered by creation time.
	List(ctx context.Context) ([]Dataset, error)

	// Load returns one dataset or ErrNotFound.
	Load(ctx context.Context, key string) (*Dataset, error)

	// Replace overwrites the non-nil parts of u and bumps UpdatedAt.
	Replace(ctx context.Context, key string, u Update) (*Dataset, error)

	// Create stores d under a newly assigned key. CreatedAt and UpdatedAt
	// are set by the store.
	Create(ctx context.Context, d Dataset) (*Dataset, error)

	// Delete removes a dataset or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Count returns the number of stored datasets.
	Count(ctx context.Context) (int, error)
}

// Pusher is the part of Store a SyncController writes through.
type Pusher interface {
	Replace(ctx context.Context, key string, u Update) (*Dataset, error)
}

// FieldExtractor fills record fields from free text, typically via an
// external language model. Returned maps are keyed by column id and may be
// partial; NormaliseExtracted conforms them to the schema.
type FieldExtractor interface {
	Extract(ctx context.Context, text string, schema []ColumnSchema) (map[string]any, error)
}
