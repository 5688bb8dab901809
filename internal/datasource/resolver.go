package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/bronze"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/httpclient"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/tabular"
)

type SourceType string

const (
	SourceRemote      SourceType = "remote"
	SourceBronzeCache SourceType = "bronze_cache"
	SourceManual      SourceType = "manual"
)

// Cache lists previously persisted payloads.
type Cache interface {
	ListCached(source, period string) ([]bronze.Cached, error)
}

// Candidate is one dataset the resolver tries.
type Candidate struct {
	Type      SourceType
	URI       string
	FileName  string
	Extension string
}

// Probe reports how many municipality rows a parsed candidate yields.
type Probe func(f *tabular.Frame, c Candidate) (rows int, warnings []string)

// Request describes one resolution.
type Request struct {
	Source            string
	Period            string
	Catalog           *Catalog
	Extra             []RemoteCandidate
	Force             bool
	PreferManualFirst bool
	ManualRoot        string
	LoadOptions       tabular.LoadOptions
	FetchOptions      httpclient.RequestOptions
	Probe             Probe
}

// Resolution is the selected dataset.
type Resolution struct {
	Frame          *tabular.Frame
	Raw            []byte
	Suffix         string
	SourceType     SourceType
	SourceURI      string
	SourceFileName string
	Warnings       []string
}

// Report accounts for every candidate tried, resolved or not.
type Report struct {
	Warnings       []string
	CatalogSize    int
	RemoteAttempts int
	RemoteFailures int
	Tried          int
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type Resolver struct {
	fetcher Fetcher
	cache   Cache
	log     *slog.Logger
}

// NewResolver returns a resolver. cache may be nil.
func NewResolver(f Fetcher, cache Cache, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{fetcher: f, cache: cache, log: log}
}

// Resolve returns the first candidate whose probe yields at least one row.
// A nil Resolution means no candidate was usable. The error is non-nil only
// when ctx is done.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, Report, error) {
	var rep Report
	steps := []func(context.Context, Request, *Report) (*Resolution, error){r.tryRemote, r.tryCache, r.tryManual}
	if req.PreferManualFirst {
		steps = []func(context.Context, Request, *Report) (*Resolution, error){r.tryManual, r.tryRemote, r.tryCache}
	}
	for _, step := range steps {
		res, err := step(ctx, req, &rep)
		if err != nil {
			return nil, rep, err
		}
		if res != nil {
			res.Warnings = append([]string(nil), rep.Warnings...)
			return res, rep, nil
		}
	}
	rep.warn("no usable data source for %s %s after %d candidates", req.Source, req.Period, rep.Tried)
	return nil, rep, nil
}

func (r *Resolver) tryRemote(ctx context.Context, req Request, rep *Report) (*Resolution, error) {
	candidates := req.Catalog.Candidates(req.Period)
	rep.CatalogSize = len(candidates)
	candidates = append(candidates, req.Extra...)

	if req.Catalog != nil && req.Catalog.Discovery != nil && req.Catalog.Discovery.LandingPage != "" && r.fetcher != nil {
		found, err := DiscoverLinks(ctx, r.fetcher, *req.Catalog.Discovery, req.Period)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			rep.RemoteFailures++
			rep.warn("discovery on %s failed: %v", req.Catalog.Discovery.LandingPage, err)
		} else if len(found) == 0 {
			rep.warn("discovery on %s found no matching links", req.Catalog.Discovery.LandingPage)
		}
		candidates = append(candidates, found...)
	}
	if r.fetcher == nil {
		return nil, nil
	}

	seen := map[string]bool{}
	for _, c := range candidates {
		if seen[c.URI] {
			continue
		}
		seen[c.URI] = true
		rep.Tried++
		rep.RemoteAttempts++
		payload, err := r.fetcher.GetBytes(ctx, c.URI, req.FetchOptions)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			rep.RemoteFailures++
			rep.warn("remote %s failed: %v", c.URI, err)
			continue
		}
		suffix := c.Extension
		if suffix == "" || !tabular.IsSupported(suffix) {
			if guess := suffixFromContentType(payload.ContentType); guess != "" {
				suffix = guess
			}
		}
		cand := Candidate{Type: SourceRemote, URI: c.URI, FileName: path.Base(c.URI), Extension: suffix}
		if res := r.evaluate(payload.Body, cand, req, rep); res != nil {
			return res, nil
		}
	}
	return nil, nil
}

func (r *Resolver) tryCache(ctx context.Context, req Request, rep *Report) (*Resolution, error) {
	if req.Force || r.cache == nil {
		return nil, nil
	}
	cached, err := r.cache.ListCached(req.Source, req.Period)
	if err != nil {
		rep.warn("bronze cache listing failed: %v", err)
		return nil, nil
	}
	for _, c := range cached {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep.Tried++
		raw, err := os.ReadFile(c.Path)
		if err != nil {
			rep.warn("bronze cache %s unreadable: %v", c.Path, err)
			continue
		}
		cand := Candidate{Type: SourceBronzeCache, URI: c.Path, FileName: filepath.Base(c.Path), Extension: "." + c.Extension}
		if res := r.evaluate(raw, cand, req, rep); res != nil {
			rep.warn("bronze cache fallback: using %s", c.Path)
			return res, nil
		}
	}
	return nil, nil
}

func (r *Resolver) tryManual(ctx context.Context, req Request, rep *Report) (*Resolution, error) {
	if req.ManualRoot == "" {
		return nil, nil
	}
	files, err := ListManual(req.ManualRoot, req.Source, req.Period)
	if err != nil {
		rep.warn("manual directory listing failed: %v", err)
		return nil, nil
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep.Tried++
		raw, err := os.ReadFile(f.Path)
		if err != nil {
			rep.warn("manual file %s unreadable: %v", f.Path, err)
			continue
		}
		cand := Candidate{Type: SourceManual, URI: f.Path, FileName: f.Name, Extension: filepath.Ext(f.Name)}
		if res := r.evaluate(raw, cand, req, rep); res != nil {
			rep.warn("manual fallback: using %s", f.Name)
			return res, nil
		}
	}
	return nil, nil
}

// evaluate parses and probes raw; parse failures and empty probes become
// warnings and the next candidate is tried.
func (r *Resolver) evaluate(raw []byte, c Candidate, req Request, rep *Report) *Resolution {
	frame, err := tabular.Load(raw, c.Extension, req.LoadOptions)
	if err != nil {
		rep.warn("%s candidate %s unparseable: %v", c.Type, c.FileName, err)
		r.log.Warn("candidate skipped", "type", c.Type, "uri", c.URI, "error", err)
		return nil
	}
	rows := frame.Len()
	if req.Probe != nil {
		var warnings []string
		rows, warnings = req.Probe(frame, c)
		rep.Warnings = append(rep.Warnings, warnings...)
	}
	if rows < 1 {
		rep.warn("%s candidate %s yielded no municipality rows", c.Type, c.FileName)
		return nil
	}
	r.log.Info("data source resolved", "type", c.Type, "uri", c.URI, "rows", rows)
	return &Resolution{
		Frame:          frame,
		Raw:            raw,
		Suffix:         c.Extension,
		SourceType:     c.Type,
		SourceURI:      c.URI,
		SourceFileName: c.FileName,
	}
}
