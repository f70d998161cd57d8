package compensation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompensate_RestoresOriginalContent(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "sub", "data.txt")
	orig := []byte("original content")

	c := NewFileRestore(root, testLogger())
	payload := fmt.Sprintf(`{"file":"sub/data.txt","origBase64":%q}`,
		base64.StdEncoding.EncodeToString(orig))

	ok, err := c.Compensate(context.Background(), 1, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Compensate failed: %v", err)
	}
	if !ok {
		t.Fatal("expected true")
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(orig) {
		t.Errorf("content = %q, want %q", got, orig)
	}
}

func TestCompensate_OverwritesExistingFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "data.txt")
	if err := os.WriteFile(target, []byte("corrupted"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewFileRestore(root, testLogger())
	payload := fmt.Sprintf(`{"file":"data.txt","origBase64":%q}`,
		base64.StdEncoding.EncodeToString([]byte("restored")))

	ok, err := c.Compensate(context.Background(), 1, json.RawMessage(payload))
	if err != nil || !ok {
		t.Fatalf("Compensate = (%v, %v)", ok, err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "restored" {
		t.Errorf("content = %q", got)
	}
}

func TestCompensate_DeletesWhenNoOriginal(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "created.txt")
	if err := os.WriteFile(target, []byte("new file"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewFileRestore(root, testLogger())
	ok, err := c.Compensate(context.Background(), 1, json.RawMessage(`{"file":"created.txt"}`))
	if err != nil || !ok {
		t.Fatalf("Compensate = (%v, %v)", ok, err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("target should be deleted")
	}

	// deleting an already-absent file stays idempotent
	ok, err = c.Compensate(context.Background(), 1, json.RawMessage(`{"file":"created.txt"}`))
	if err != nil || !ok {
		t.Fatalf("second Compensate = (%v, %v)", ok, err)
	}
}

func TestCompensate_ExplicitRootOverridesDefault(t *testing.T) {
	defaultRoot := t.TempDir()
	otherRoot := t.TempDir()

	c := NewFileRestore(defaultRoot, testLogger())
	payload := fmt.Sprintf(`{"root":%q,"file":"x.txt","origBase64":%q}`,
		otherRoot, base64.StdEncoding.EncodeToString([]byte("hi")))

	ok, err := c.Compensate(context.Background(), 1, json.RawMessage(payload))
	if err != nil || !ok {
		t.Fatalf("Compensate = (%v, %v)", ok, err)
	}
	if _, err := os.Stat(filepath.Join(otherRoot, "x.txt")); err != nil {
		t.Error("file should land under the explicit root")
	}
	if _, err := os.Stat(filepath.Join(defaultRoot, "x.txt")); !os.IsNotExist(err) {
		t.Error("default root must stay untouched")
	}
}

func TestCompensate_PathTraversalRaises(t *testing.T) {
	root := t.TempDir()
	c := NewFileRestore(root, testLogger())

	_, err := c.Compensate(context.Background(), 1,
		json.RawMessage(`{"file":"../escape.txt"}`))
	if err == nil || !strings.Contains(err.Error(), "outside root") {
		t.Errorf("err = %v, want path traversal error", err)
	}
}

func TestCompensate_MissingFileReturnsFalse(t *testing.T) {
	c := NewFileRestore(t.TempDir(), testLogger())
	ok, err := c.Compensate(context.Background(), 1, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("missing file must not raise: %v", err)
	}
	if ok {
		t.Error("missing file must report false")
	}
}

func TestCompensate_OversizedBase64Rejected(t *testing.T) {
	c := NewFileRestore(t.TempDir(), testLogger())
	huge := strings.Repeat("A", maxBase64Len+1)
	payload := fmt.Sprintf(`{"file":"x","origBase64":%q}`, huge)

	_, err := c.Compensate(context.Background(), 1, json.RawMessage(payload))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v, want size error", err)
	}
}

func TestCompensate_BadBase64Raises(t *testing.T) {
	c := NewFileRestore(t.TempDir(), testLogger())
	_, err := c.Compensate(context.Background(), 1,
		json.RawMessage(`{"file":"x","origBase64":"!!!not-base64!!!"}`))
	if err == nil {
		t.Error("expected decode error")
	}
}

func TestActionType(t *testing.T) {
	c := NewFileRestore("/", testLogger())
	if c.ActionType() != "file.restore" {
		t.Errorf("action type = %q", c.ActionType())
	}
}
