package codeindex

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

const sampleSource = `// Package widgets builds widgets.
package widgets

import "fmt"

// Widget is a thing.
type Widget struct {
	Name string
}

// Labeler names things.
type Labeler interface {
	Label() string
}

// Label returns the widget name.
func (w *Widget) Label() string {
	return fmt.Sprintf("widget:%s", w.Name)
}

func helper() {}
`

func TestRun_IndexesTree(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, root, "widgets/widget.go", sampleSource)
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n")
	writeFile(t, root, "widgets/widget_test.go", "package widgets\n")

	r := NewRunner(testLogger())
	payload := fmt.Sprintf(`{"root":%q,"output":%q}`, root, out)
	if err := r.Run(context.Background(), json.RawMessage(payload)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	pkgs := readCSV(t, filepath.Join(out, "packages.csv"))
	// header + one accepted file (vendor and _test.go are excluded)
	if len(pkgs) != 2 {
		t.Fatalf("packages rows = %v", pkgs)
	}
	if pkgs[1][0] != "widgets" || pkgs[1][1] != "widgets/widget.go" {
		t.Errorf("package row = %v", pkgs[1])
	}

	types := readCSV(t, filepath.Join(out, "types.csv"))
	if len(types) != 3 {
		t.Fatalf("types rows = %v", types)
	}
	kinds := map[string]string{}
	for _, row := range types[1:] {
		kinds[row[1]] = row[2]
	}
	if kinds["Widget"] != "struct" || kinds["Labeler"] != "interface" {
		t.Errorf("type kinds = %v", kinds)
	}

	funcs := readCSV(t, filepath.Join(out, "funcs.csv"))
	if len(funcs) != 3 {
		t.Fatalf("funcs rows = %v", funcs)
	}
	byName := map[string][]string{}
	for _, row := range funcs[1:] {
		byName[row[2]] = row
	}
	label, ok := byName["Label"]
	if !ok {
		t.Fatal("Label method missing")
	}
	if label[1] != "Widget" {
		t.Errorf("Label receiver = %q", label[1])
	}
	if label[5] != "true" {
		t.Errorf("Label exported = %q", label[5])
	}
	if helper, ok := byName["helper"]; !ok || helper[5] != "false" {
		t.Errorf("helper row = %v", helper)
	}

	calls := readCSV(t, filepath.Join(out, "calls.csv"))
	foundSprintf := false
	for _, row := range calls[1:] {
		if row[2] == "fmt.Sprintf" && row[1] == "Widget.Label" {
			foundSprintf = true
		}
	}
	if !foundSprintf {
		t.Errorf("calls rows = %v, want Widget.Label -> fmt.Sprintf", calls)
	}
}

func TestRun_ValidatesPayload(t *testing.T) {
	r := NewRunner(testLogger())

	if err := r.Run(context.Background(), json.RawMessage(`{"output":"/tmp/x"}`)); err == nil {
		t.Error("missing root must fail")
	}
	if err := r.Run(context.Background(), json.RawMessage(`{"root":"/tmp/x"}`)); err == nil {
		t.Error("missing output must fail")
	}
	if err := r.Run(context.Background(), json.RawMessage(`not json`)); err == nil {
		t.Error("malformed payload must fail")
	}
}

func TestRun_SkipsUnparsableFile(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, root, "ok.go", "package ok\n")
	writeFile(t, root, "broken.go", "pack-age nope {{{")

	r := NewRunner(testLogger())
	payload := fmt.Sprintf(`{"root":%q,"output":%q}`, root, out)
	if err := r.Run(context.Background(), json.RawMessage(payload)); err != nil {
		t.Fatalf("a broken file must not fail the run: %v", err)
	}

	pkgs := readCSV(t, filepath.Join(out, "packages.csv"))
	if len(pkgs) != 2 || pkgs[1][0] != "ok" {
		t.Errorf("packages rows = %v", pkgs)
	}
}
