package store

import (
	"context"
	"testing"
)

func TestRunFromContext_Empty(t *testing.T) {
	if id, ok := RunFromContext(context.Background()); ok || id != 0 {
		t.Errorf("got (%d, %v), want (0, false)", id, ok)
	}
}

func TestWithRun_RoundTrip(t *testing.T) {
	ctx := WithRun(context.Background(), 42)
	id, ok := RunFromContext(ctx)
	if !ok || id != 42 {
		t.Errorf("got (%d, %v), want (42, true)", id, ok)
	}
}

func TestWithRun_InnerBindingWins(t *testing.T) {
	ctx := WithRun(WithRun(context.Background(), 1), 2)
	if id, _ := RunFromContext(ctx); id != 2 {
		t.Errorf("got %d, want 2", id)
	}
}
