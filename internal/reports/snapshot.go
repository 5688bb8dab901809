package reports

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// SnapshotPath is the default location of a report under reportsRoot.
func SnapshotPath(reportsRoot, name string, now time.Time) string {
	return filepath.Join(reportsRoot, fmt.Sprintf("%s_%s.json", name, now.UTC().Format("20060102T150405Z")))
}

// WriteSnapshot writes v as indented JSON to path, or to stdout when path
// is "-". Parent directories are created.
func WriteSnapshot(path string, stdout io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	b = append(b, '\n')
	if path == "-" {
		_, err := stdout.Write(b)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp, path)
}
