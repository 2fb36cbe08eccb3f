package core

import "context"

type contextKey string

const ctxKeyDataset contextKey = "dataset"

// ContextWithDataset records the dataset key a request operates on.
func ContextWithDataset(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxKeyDataset, key)
}

// DatasetFromContext returns the dataset key stored by ContextWithDataset.
func DatasetFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyDataset).(string); ok {
		return v
	}
	return ""
}
