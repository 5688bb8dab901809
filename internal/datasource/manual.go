package datasource

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/tabular"
)

var yearTokenRe = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)

// ManualFile is a file dropped under data/manual/<source>/.
type ManualFile struct {
	Path    string
	Name    string
	ModTime time.Time
	// Rank 0 names the reference year, rank 1 names no year.
	Rank int
}

// ListManual returns the usable manual files for source and period. Files
// naming another year are skipped; ties keep the newest file first.
func ListManual(root, source, period string) ([]ManualFile, error) {
	dir := filepath.Join(root, strings.ToLower(source))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	year := Year(period)
	var out []ManualFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !tabular.IsSupported(filepath.Ext(e.Name())) {
			continue
		}
		rank, ok := manualRank(e.Name(), year)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ManualFile{
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			ModTime: info.ModTime(),
			Rank:    rank,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}

func manualRank(name, year string) (int, bool) {
	years := yearTokens(name)
	if len(years) == 0 {
		return 1, true
	}
	for _, y := range years {
		if y == year {
			return 0, true
		}
	}
	return 0, false
}

func yearTokens(name string) []string {
	var out []string
	// Tokens may share a separator ("2019_2020"), so scan piecewise.
	rest := name
	for {
		loc := yearTokenRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			return out
		}
		out = append(out, rest[loc[2]:loc[3]])
		rest = rest[loc[3]:]
	}
}
