// Package compensation contains compensators for file-mutating runners.
package compensation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// maxBase64Len caps the encoded payload size.
const maxBase64Len = 200 * 1024

// FileRestore undoes a file write recorded during a run. With origBase64 it
// restores the previous content via an atomic rename; without it the target
// is deleted (the file did not exist before). Targets must resolve inside
// the root after normalization.
type FileRestore struct {
	defaultRoot string
	log         *slog.Logger
}

func NewFileRestore(defaultRoot string, log *slog.Logger) *FileRestore {
	if log == nil {
		log = slog.Default()
	}
	return &FileRestore{defaultRoot: defaultRoot, log: log}
}

func (f *FileRestore) ActionType() string {
	return "file.restore"
}

type restorePayload struct {
	Root       *string `json:"root"`
	File       *string `json:"file"`
	OrigBase64 *string `json:"origBase64"`
}

func (f *FileRestore) Compensate(ctx context.Context, runID int64, payload json.RawMessage) (bool, error) {
	var p restorePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false, fmt.Errorf("file.restore: bad payload: %w", err)
	}

	rootStr := f.defaultRoot
	if p.Root != nil && *p.Root != "" {
		rootStr = *p.Root
	}
	root, err := filepath.Abs(rootStr)
	if err != nil {
		return false, fmt.Errorf("file.restore: bad root %q: %w", rootStr, err)
	}
	root = filepath.Clean(root)

	if p.File == nil || *p.File == "" {
		f.log.Warn("file.restore: missing 'file' in payload", "run_id", runID)
		return false, nil
	}

	target := filepath.Clean(filepath.Join(root, *p.File))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, fmt.Errorf("file.restore: illegal target path (outside root) run=%d target=%s root=%s",
			runID, target, root)
	}

	if p.OrigBase64 == nil {
		// no original content recorded: the file did not exist before
		err := os.Remove(target)
		if err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("file.restore: delete %s failed: %w", target, err)
		}
		f.log.Info("file.restore: removed target", "run_id", runID, "target", target, "existed", err == nil)
		return true, nil
	}

	if len(*p.OrigBase64) > maxBase64Len {
		return false, fmt.Errorf("file.restore: origBase64 too large run=%d size=%d", runID, len(*p.OrigBase64))
	}
	data, err := base64.StdEncoding.DecodeString(*p.OrigBase64)
	if err != nil {
		return false, fmt.Errorf("file.restore: bad origBase64: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("file.restore: mkdir for %s failed: %w", target, err)
	}

	if err := atomicWrite(target, data); err != nil {
		return false, fmt.Errorf("file.restore: write %s failed: %w", target, err)
	}

	f.log.Info("file.restore: restored file", "run_id", runID, "target", target)
	return true, nil
}

// atomicWrite writes to a sibling temp file and renames it over the target,
// falling back to a direct write where the filesystem rejects the rename.
func atomicWrite(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, target); err != nil {
		return os.WriteFile(target, data, 0o644)
	}
	return nil
}
