package connector

import (
	"context"
	"time"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/datasource"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/indicators"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/tabular"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
)

// BuildInput is the municipality-filtered frame handed to a Build hook.
type BuildInput struct {
	Frame        *tabular.Frame
	Municipality territory.Municipality
	Source       string
	Dataset      string
	Period       string
	Now          time.Time
}

// BuildFunc turns a filtered frame into typed facts.
type BuildFunc func(in BuildInput) (warehouse.Batch, []string)

// DiscoverFunc returns remote candidates beyond the catalog, e.g. from a
// CKAN package listing.
type DiscoverFunc func(ctx context.Context, rc *RunContext) ([]datasource.RemoteCandidate, error)

// Definition configures a tabular job. Jobs differ only in the values they
// set here; the lifecycle is shared.
type Definition struct {
	JobMeta

	// CatalogPath defaults to <config_root>/catalogs/<name>.yml.
	CatalogPath   string
	HeaderMarkers []string
	SheetIndex    int

	CodeColumns []string
	NameColumns []string
	UFColumns   []string
	YearColumns []string

	Specs    []indicators.Spec
	Build    BuildFunc
	Discover DiscoverFunc

	PreferManualFirst    bool
	MinPayloadBytes      int
	ExpectedContentTypes []string
}

// Job binds the definition to the tabular body.
func (d Definition) Job() Job {
	return Job{Meta: d.JobMeta, Body: d.run}
}

func (d Definition) run(ctx context.Context, rc *RunContext) (*Outcome, error) {
	env := rc.Env
	if env.Resolver == nil {
		return nil, errs.Errorf(errs.KindConfiguration, "%s: no data source resolver configured", d.Name)
	}
	path := d.CatalogPath
	if path == "" {
		path = env.Settings.CatalogPath(d.Name)
	}
	catalog, err := datasource.LoadCatalog(path)
	if err != nil {
		return nil, err
	}

	out := &Outcome{}
	var extra []datasource.RemoteCandidate
	if d.Discover != nil {
		extra, err = d.Discover(ctx, rc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out.Warn("candidate discovery failed: %v", err)
		}
	}

	markers := d.HeaderMarkers
	if len(markers) == 0 {
		markers = tabular.DefaultHeaderMarkers
	}
	req := datasource.Request{
		Source:            d.Source,
		Period:            rc.Options.ReferencePeriod,
		Catalog:           catalog,
		Extra:             extra,
		Force:             rc.Options.Force,
		PreferManualFirst: d.PreferManualFirst,
		ManualRoot:        env.Settings.ManualRoot(),
		LoadOptions:       tabular.LoadOptions{HeaderMarkers: markers, SheetIndex: d.SheetIndex},
		FetchOptions:      rc.FetchOptions(d.MinPayloadBytes, d.ExpectedContentTypes),
		Probe: func(f *tabular.Frame, c datasource.Candidate) (int, []string) {
			b, _, _, warnings := d.build(f, c, rc)
			return b.Len(), warnings
		},
	}
	res, rep, err := env.Resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Warnings = append(out.Warnings, rep.Warnings...)
	out.Checks = sourceChecks(rep)
	out.Details = map[string]any{
		"catalog_size":    rep.CatalogSize,
		"remote_attempts": rep.RemoteAttempts,
		"remote_failures": rep.RemoteFailures,
		"candidates":      rep.Tried,
	}
	if res == nil {
		return out, nil
	}

	cand := datasource.Candidate{Type: res.SourceType, URI: res.SourceURI, FileName: res.SourceFileName, Extension: res.Suffix}
	batch, filtered, strategy, _ := d.build(res.Frame, cand, rc)

	out.Resolved = true
	out.SourceType = res.SourceType
	out.SourceURI = res.SourceURI
	out.SourceFile = res.SourceFileName
	out.RowsExtracted = int64(filtered.Len())
	out.Batch = batch
	out.Raw = &Raw{Bytes: res.Raw, Extension: res.Suffix, URI: res.SourceURI}
	out.Details["parsed_rows"] = res.Frame.Len()
	out.Details["match_strategy"] = string(strategy)
	return out, nil
}

// build filters f to the municipality and period and applies the hooks.
func (d Definition) build(f *tabular.Frame, c datasource.Candidate, rc *RunContext) (warehouse.Batch, *tabular.Frame, tabular.MatchStrategy, []string) {
	m := rc.Municipality
	filtered, strategy := tabular.FilterMunicipality(f, tabular.MunicipalityFilter{
		Code:        m.IBGECode,
		Name:        m.Name,
		UF:          m.UF,
		CodeColumns: d.CodeColumns,
		NameColumns: d.NameColumns,
		UFColumns:   d.UFColumns,
		FileName:    c.FileName,
	})
	var warnings []string
	if len(d.YearColumns) > 0 {
		var w string
		filtered, w = tabular.FilterYear(filtered, d.YearColumns, datasource.Year(rc.Options.ReferencePeriod))
		if w != "" {
			warnings = append(warnings, w)
		}
	}
	var batch warehouse.Batch
	if filtered.Len() == 0 {
		return batch, filtered, strategy, warnings
	}

	now := time.Now().UTC()
	if len(d.Specs) > 0 {
		facts, w := indicators.Build(filtered, d.Specs, indicators.Context{
			TerritoryID:     m.TerritoryID,
			Source:          d.Source,
			Dataset:         d.Dataset,
			ReferencePeriod: rc.Options.ReferencePeriod,
			Now:             now,
		})
		batch.Indicators = facts
		warnings = append(warnings, w...)
	}
	if d.Build != nil {
		typed, w := d.Build(BuildInput{
			Frame:        filtered,
			Municipality: m,
			Source:       d.Source,
			Dataset:      d.Dataset,
			Period:       rc.Options.ReferencePeriod,
			Now:          now,
		})
		batch = merge(batch, typed)
		warnings = append(warnings, w...)
	}
	return batch, filtered, strategy, warnings
}

func merge(a, b warehouse.Batch) warehouse.Batch {
	a.Territories = append(a.Territories, b.Territories...)
	a.Indicators = append(a.Indicators, b.Indicators...)
	a.Electorate = append(a.Electorate, b.Electorate...)
	a.ElectionResults = append(a.ElectionResults, b.ElectionResults...)
	a.SocialProtection = append(a.SocialProtection, b.SocialProtection...)
	a.SocialAssistance = append(a.SocialAssistance, b.SocialAssistance...)
	return a
}

// sourceChecks reports catalog size and request failures of a resolution.
func sourceChecks(rep datasource.Report) []ops.Check {
	var checks []ops.Check
	details := map[string]any{"remote_attempts": rep.RemoteAttempts}
	if rep.CatalogSize > 0 {
		checks = append(checks, ops.Pass("remote_catalog_size", rep.CatalogSize, 1, nil))
	} else {
		checks = append(checks, ops.Warn("remote_catalog_size", rep.CatalogSize, 1, nil))
	}
	if rep.RemoteFailures == 0 {
		checks = append(checks, ops.Pass("remote_request_failures", 0, 0, details))
	} else {
		checks = append(checks, ops.Warn("remote_request_failures", rep.RemoteFailures, 0, details))
	}
	return checks
}
