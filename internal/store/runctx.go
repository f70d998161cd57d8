package store

import "context"

// runIDKey is the context key for the ambient run binding.
type runIDKey struct{}

// WithRun returns a new context carrying the run ID. The engine binds it
// immediately before invoking a handler so the handler can append
// compensation entries without threading the run identity through its
// signature.
func WithRun(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunFromContext extracts the bound run ID from the context.
func RunFromContext(ctx context.Context) (int64, bool) {
	if v := ctx.Value(runIDKey{}); v != nil {
		return v.(int64), true
	}
	return 0, false
}
