// Package datasource chooses the dataset a tabular connector ingests:
// catalog resources, links discovered on landing pages, cached bronze
// artifacts and manual drop files, in that order.
package datasource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

// Resource is one remote dataset listed in a connector catalog.
type Resource struct {
	URI             string `yaml:"uri"`
	Extension       string `yaml:"extension"`
	ReferencePeriod string `yaml:"reference_period"`
}

// Discovery scrapes a landing page for dataset links.
type Discovery struct {
	LandingPage string   `yaml:"landing_page"`
	LinkPattern string   `yaml:"link_pattern"`
	Extensions  []string `yaml:"extensions"`
}

// Catalog is the per-connector YAML file under configs/catalogs/.
type Catalog struct {
	Resources []Resource `yaml:"resources"`
	Discovery *Discovery `yaml:"discovery"`
}

// RemoteCandidate is a URL to try, with its expected payload suffix.
type RemoteCandidate struct {
	URI       string
	Extension string
}

// LoadCatalog reads a catalog file. A missing file is a configuration error.
func LoadCatalog(p string) (*Catalog, error) {
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.E(errs.KindConfiguration, "load catalog", fmt.Errorf("catalog file %s not found", p))
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errs.E(errs.KindConfiguration, "parse catalog "+p, err)
	}
	return &c, nil
}

// Candidates expands the catalog resources for period. Resources pinned to a
// different reference period are skipped.
func (c *Catalog) Candidates(period string) []RemoteCandidate {
	if c == nil {
		return nil
	}
	year := Year(period)
	var out []RemoteCandidate
	for _, r := range c.Resources {
		if r.URI == "" {
			continue
		}
		if r.ReferencePeriod != "" && r.ReferencePeriod != period && r.ReferencePeriod != year {
			continue
		}
		uri := ExpandPlaceholders(r.URI, period)
		out = append(out, RemoteCandidate{URI: uri, Extension: suffixFor(r.Extension, uri)})
	}
	return out
}

// ExpandPlaceholders substitutes {reference_period} and {year}.
func ExpandPlaceholders(s, period string) string {
	return strings.NewReplacer("{reference_period}", period, "{year}", Year(period)).Replace(s)
}

// Year returns the 4-digit year of a period token ("2025-03" -> "2025").
func Year(period string) string {
	if len(period) >= 4 {
		return period[:4]
	}
	return period
}

// suffixFor returns ".ext" from an explicit extension or the URL path.
func suffixFor(ext, uri string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" {
		return "." + strings.TrimPrefix(ext, ".")
	}
	p := uri
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// suffixFromContentType guesses a suffix when the URL carries none.
func suffixFromContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "spreadsheetml"):
		return ".xlsx"
	case strings.Contains(ct, "ms-excel"):
		return ".xls"
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "zip"):
		return ".zip"
	case strings.Contains(ct, "csv"), strings.Contains(ct, "text/plain"):
		return ".csv"
	default:
		return ""
	}
}
