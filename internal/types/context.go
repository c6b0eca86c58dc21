package types

import "context"

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID stores the dispatch run ID in the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the dispatch run ID from the context, or "" when unset.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
