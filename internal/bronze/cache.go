package bronze

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Cached is a previously persisted raw payload.
type Cached struct {
	Path        string
	Dataset     string
	Extension   string
	ExtractedAt time.Time
	ModTime     time.Time
}

// ListCached returns raw artifacts for source and period across datasets,
// most recently modified first.
func (s *Store) ListCached(source, period string) ([]Cached, error) {
	pattern := filepath.Join(s.cfg.BronzeRoot, Slug(source), "*", Slug(period), "extracted_at=*", "raw.*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]Cached, 0, len(matches))
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		tsDir := filepath.Base(filepath.Dir(p))
		ts, _ := ParseTimestampFolder(tsDir)
		dataset := filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(p))))
		out = append(out, Cached{
			Path:        p,
			Dataset:     dataset,
			Extension:   strings.TrimPrefix(filepath.Ext(p), "."),
			ExtractedAt: ts,
			ModTime:     info.ModTime(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].ExtractedAt.After(out[j].ExtractedAt)
	})
	return out, nil
}
