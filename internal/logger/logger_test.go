package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("got %q, want %q", got, "req-123")
	}
}

func TestRequestIDMissing(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestFromContext(t *testing.T) {
	base := New(slog.LevelInfo)

	// without a request ID the base logger comes back unchanged
	if got := FromContext(context.Background(), base); got != base {
		t.Error("expected base logger for empty context")
	}

	ctx := WithRequestID(context.Background(), "abc")
	if got := FromContext(ctx, base); got == base {
		t.Error("expected derived logger with request_id attached")
	}
}
