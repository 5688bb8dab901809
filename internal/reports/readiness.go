package reports

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Verdicts shared by the readiness and robustness reports.
const (
	Ready    = "READY"
	NotReady = "NOT_READY"
)

// DefaultRequiredTables is the minimum warehouse downstream readers assume.
var DefaultRequiredTables = []string{
	"silver.dim_territory",
	"silver.fact_indicator",
	"silver.fact_electorate",
	"silver.fact_election_result",
	"silver.fact_social_protection",
	"silver.fact_social_assistance_network",
	"ops.pipeline_runs",
	"ops.pipeline_checks",
	"ops.connector_registry",
	"ops.schema_contracts",
}

// ReadinessOptions tune the readiness report.
type ReadinessOptions struct {
	WindowDays              int
	HealthWindowDays        int
	SLO1TargetPct           float64
	IncludeBlockedAsSuccess bool
	RequiredTables          []string
	RequiredExtension       string
	Now                     time.Time
}

func (o ReadinessOptions) withDefaults() ReadinessOptions {
	if o.WindowDays <= 0 {
		o.WindowDays = 7
	}
	if o.HealthWindowDays <= 0 {
		o.HealthWindowDays = 1
	}
	if o.SLO1TargetPct <= 0 {
		o.SLO1TargetPct = 95
	}
	if o.RequiredTables == nil {
		o.RequiredTables = DefaultRequiredTables
	}
	if o.RequiredExtension == "" {
		o.RequiredExtension = "postgis"
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	o.Now = o.Now.UTC()
	return o
}

// JobSLO is one job's success rate in a window.
type JobSLO struct {
	JobRunStats
	SuccessRatePct float64 `json:"success_rate_pct"`
	MeetsTarget    bool    `json:"meets_target"`
}

// SLOWindow is SLO-1 over one window.
type SLOWindow struct {
	WindowDays      int      `json:"window_days"`
	TargetPct       float64  `json:"target_pct"`
	Runs            int      `json:"runs"`
	Successes       int      `json:"successes"`
	SuccessRatePct  *float64 `json:"success_rate_pct"`
	Jobs            []JobSLO `json:"jobs"`
	JobsBelowTarget []string `json:"jobs_below_target"`
}

// Met reports whether the window has runs and reaches the target.
func (w SLOWindow) Met() bool {
	return w.SuccessRatePct != nil && *w.SuccessRatePct >= w.TargetPct
}

// SLO3 is the share of implemented runs with at least one check.
type SLO3 struct {
	CheckCoverage
	SharePct *float64 `json:"share_pct"`
	Met      bool     `json:"met"`
}

// Readiness is the backend readiness report.
type Readiness struct {
	GeneratedAt      time.Time                      `json:"generated_at_utc"`
	Status           string                         `json:"status"`
	Extension        string                         `json:"required_extension"`
	ExtensionPresent bool                           `json:"extension_present"`
	RequiredTables   []string                       `json:"required_tables"`
	MissingTables    []string                       `json:"missing_tables"`
	Registry         map[models.ConnectorStatus]int `json:"registry_by_status"`
	RegistryTotal    int                            `json:"registry_total"`
	IncludeBlocked   bool                           `json:"include_blocked_as_success"`
	SLO1             SLOWindow                      `json:"slo1"`
	SLO1Current      SLOWindow                      `json:"slo1_current"`
	SLO3             SLO3                           `json:"slo3"`
	LegacyProbeRows  int64                          `json:"legacy_probe_rows"`
	HardFailures     []string                       `json:"hard_failures"`
	Warnings         []string                       `json:"warnings"`
}

// ReadinessInputs are the raw aggregations a readiness report derives from.
type ReadinessInputs struct {
	ExtensionPresent bool
	ExistingTables   map[string]bool
	Registry         map[models.ConnectorStatus]int
	LongWindow       []JobRunStats
	ShortWindow      []JobRunStats
	Coverage         CheckCoverage
	LegacyProbeRows  int64
}

// BuildReadiness queries s and evaluates the report.
func BuildReadiness(ctx context.Context, s Store, opts ReadinessOptions) (Readiness, error) {
	opts = opts.withDefaults()
	var (
		in  ReadinessInputs
		err error
	)
	if in.ExtensionPresent, err = s.ExtensionInstalled(ctx, opts.RequiredExtension); err != nil {
		return Readiness{}, err
	}
	if in.ExistingTables, err = s.ExistingTables(ctx, opts.RequiredTables); err != nil {
		return Readiness{}, err
	}
	// Ops aggregations need the ops tables; their absence is already a hard failure.
	if in.ExistingTables["ops.connector_registry"] && in.ExistingTables["ops.pipeline_runs"] {
		if in.Registry, err = s.RegistryCounts(ctx); err != nil {
			return Readiness{}, err
		}
		longSince := opts.Now.AddDate(0, 0, -opts.WindowDays)
		if in.LongWindow, err = s.JobRunStats(ctx, longSince); err != nil {
			return Readiness{}, err
		}
		if in.ShortWindow, err = s.JobRunStats(ctx, opts.Now.AddDate(0, 0, -opts.HealthWindowDays)); err != nil {
			return Readiness{}, err
		}
		if in.ExistingTables["ops.pipeline_checks"] {
			if in.Coverage, err = s.CheckCoverage(ctx, longSince); err != nil {
				return Readiness{}, err
			}
		}
	}
	if in.LegacyProbeRows, err = s.LegacyProbeRows(ctx); err != nil {
		return Readiness{}, err
	}
	return EvaluateReadiness(in, opts), nil
}

// EvaluateReadiness classifies the inputs into hard failures and warnings.
func EvaluateReadiness(in ReadinessInputs, opts ReadinessOptions) Readiness {
	opts = opts.withDefaults()
	r := Readiness{
		GeneratedAt:      opts.Now,
		Extension:        opts.RequiredExtension,
		ExtensionPresent: in.ExtensionPresent,
		RequiredTables:   opts.RequiredTables,
		MissingTables:    []string{},
		Registry:         in.Registry,
		IncludeBlocked:   opts.IncludeBlockedAsSuccess,
		LegacyProbeRows:  in.LegacyProbeRows,
		HardFailures:     []string{},
		Warnings:         []string{},
	}
	if r.Registry == nil {
		r.Registry = map[models.ConnectorStatus]int{}
	}
	for _, n := range r.Registry {
		r.RegistryTotal += n
	}
	for _, t := range opts.RequiredTables {
		if !in.ExistingTables[t] {
			r.MissingTables = append(r.MissingTables, t)
		}
	}

	r.SLO1 = sloWindow(in.LongWindow, opts.WindowDays, opts)
	r.SLO1Current = sloWindow(in.ShortWindow, opts.HealthWindowDays, opts)
	r.SLO3 = SLO3{CheckCoverage: in.Coverage, Met: true}
	if in.Coverage.Runs > 0 {
		share := pct(in.Coverage.RunsWithChecks, in.Coverage.Runs)
		r.SLO3.SharePct = &share
		r.SLO3.Met = in.Coverage.RunsWithChecks == in.Coverage.Runs
	}

	if !r.ExtensionPresent {
		r.HardFailures = append(r.HardFailures, fmt.Sprintf("extension %s is not installed", r.Extension))
	}
	for _, t := range r.MissingTables {
		r.HardFailures = append(r.HardFailures, "missing table "+t)
	}
	if r.RegistryTotal == 0 {
		r.HardFailures = append(r.HardFailures, "connector registry is empty")
	}
	if !r.SLO3.Met {
		r.HardFailures = append(r.HardFailures, fmt.Sprintf("SLO-3 violated: %d of %d implemented runs have no checks",
			in.Coverage.Runs-in.Coverage.RunsWithChecks, in.Coverage.Runs))
	}

	if r.SLO1.Runs > 0 && !r.SLO1.Met() {
		r.Warnings = append(r.Warnings, fmt.Sprintf("SLO-1 below target over %d days: %.1f%% < %.1f%%",
			opts.WindowDays, *r.SLO1.SuccessRatePct, opts.SLO1TargetPct))
	}
	if len(r.SLO1.JobsBelowTarget) > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("jobs below SLO-1 target: %v", r.SLO1.JobsBelowTarget))
	}
	if r.LegacyProbeRows > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d legacy source-probe rows still in silver.fact_indicator", r.LegacyProbeRows))
	}

	r.Status = Ready
	if len(r.HardFailures) > 0 {
		r.Status = NotReady
	}
	return r
}

func sloWindow(stats []JobRunStats, days int, opts ReadinessOptions) SLOWindow {
	w := SLOWindow{WindowDays: days, TargetPct: opts.SLO1TargetPct, Jobs: []JobSLO{}, JobsBelowTarget: []string{}}
	sorted := append([]JobRunStats(nil), stats...)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].Job < sorted[k].Job })
	for _, s := range sorted {
		ok := s.Successes
		if opts.IncludeBlockedAsSuccess {
			ok += s.Blocked
		}
		w.Runs += s.Runs
		w.Successes += ok
		j := JobSLO{JobRunStats: s}
		if s.Runs > 0 {
			j.SuccessRatePct = pct(ok, s.Runs)
			j.MeetsTarget = j.SuccessRatePct >= opts.SLO1TargetPct
		}
		if !j.MeetsTarget {
			w.JobsBelowTarget = append(w.JobsBelowTarget, s.Job)
		}
		w.Jobs = append(w.Jobs, j)
	}
	if w.Runs > 0 {
		rate := pct(w.Successes, w.Runs)
		w.SuccessRatePct = &rate
	}
	return w
}

func pct(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*10000) / 100
}
