// Package dryrun writes the artifacts a dry-run produces in place of
// remote store writes. Each file carries the same logical JSON payload
// the live run would have transmitted, indented for review.
package dryrun

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/systmms/specdeploy/internal/logging"
)

// Writer writes inspection artifacts into one output directory.
type Writer struct {
	dir    string
	logger *logging.Logger
}

// NewWriter creates the output directory and returns a writer for it.
func NewWriter(dir string, logger *logging.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dry-run output directory: %w", err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// TimestampedDir returns the conventional artifact directory for a run
// started at now: {root}/.dev/dry_run_output/{YYYYMMDD_HHMMSS}.
func TimestampedDir(root string, now time.Time) string {
	return filepath.Join(root, ".dev", "dry_run_output", now.Format("20060102_150405"))
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the full path of a named artifact.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteJSON writes v as indented JSON to the named artifact file.
func (w *Writer) WriteJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	path := w.Path(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	w.logger.Info("Saved to: %s", path)
	return nil
}

// SanitizeName makes an identifier safe for use inside an artifact file
// name.
func SanitizeName(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	return strings.ReplaceAll(s, "\\", "_")
}
