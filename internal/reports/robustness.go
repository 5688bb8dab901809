package reports

import (
	"context"
	"fmt"
	"time"
)

// Gate is one row of the robustness gate matrix.
type Gate struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Gating   bool   `json:"gating"`
	Observed any    `json:"observed"`
	Expected any    `json:"expected"`
	Detail   string `json:"detail,omitempty"`
}

// Robustness is the ops robustness window report.
type Robustness struct {
	GeneratedAt            time.Time      `json:"generated_at_utc"`
	Strict                 bool           `json:"strict"`
	WindowDays             int            `json:"window_days"`
	Status                 string         `json:"status"`
	Readiness              Readiness      `json:"readiness"`
	Scorecard              map[string]int `json:"scorecard_by_status"`
	ScorecardAvailable     bool           `json:"scorecard_available"`
	UnresolvedFailedChecks []FailedCheck  `json:"unresolved_failed_checks"`
	Gates                  []Gate         `json:"gates"`
	Warnings               []string       `json:"warnings"`
}

// RobustnessOptions tune the robustness report. Readiness is reused for
// the embedded readiness report.
type RobustnessOptions struct {
	Readiness  ReadinessOptions
	WindowDays int
	Strict     bool
}

// BuildRobustness queries s and evaluates the gate matrix.
func BuildRobustness(ctx context.Context, s Store, opts RobustnessOptions) (Robustness, error) {
	opts.Readiness = opts.Readiness.withDefaults()
	if opts.WindowDays <= 0 {
		opts.WindowDays = opts.Readiness.WindowDays
	}
	readiness, err := BuildReadiness(ctx, s, opts.Readiness)
	if err != nil {
		return Robustness{}, err
	}
	scorecard, available, err := s.ScorecardCounts(ctx)
	if err != nil {
		return Robustness{}, err
	}
	var unresolved []FailedCheck
	if readiness.ExistingTableSet()["ops.pipeline_checks"] {
		since := opts.Readiness.Now.AddDate(0, 0, -opts.WindowDays)
		if unresolved, err = s.UnresolvedFailedChecks(ctx, since); err != nil {
			return Robustness{}, err
		}
	}
	return EvaluateRobustness(readiness, scorecard, available, unresolved, opts), nil
}

// ExistingTableSet returns the required tables that are present.
func (r Readiness) ExistingTableSet() map[string]bool {
	missing := map[string]bool{}
	for _, t := range r.MissingTables {
		missing[t] = true
	}
	out := map[string]bool{}
	for _, t := range r.RequiredTables {
		if !missing[t] {
			out[t] = true
		}
	}
	return out
}

// EvaluateRobustness builds the gate matrix. The verdict is READY iff every
// gating gate passed; warnings_absent gates only in strict mode.
func EvaluateRobustness(r Readiness, scorecard map[string]int, scorecardAvailable bool, unresolved []FailedCheck, opts RobustnessOptions) Robustness {
	if scorecard == nil {
		scorecard = map[string]int{}
	}
	if unresolved == nil {
		unresolved = []FailedCheck{}
	}
	out := Robustness{
		GeneratedAt:            r.GeneratedAt,
		Strict:                 opts.Strict,
		WindowDays:             opts.WindowDays,
		Readiness:              r,
		Scorecard:              scorecard,
		ScorecardAvailable:     scorecardAvailable,
		UnresolvedFailedChecks: unresolved,
		Warnings:               append([]string{}, r.Warnings...),
	}
	if !scorecardAvailable {
		out.Warnings = append(out.Warnings, "data coverage scorecard view not found")
	}

	var current any
	if r.SLO1Current.SuccessRatePct != nil {
		current = *r.SLO1Current.SuccessRatePct
	}
	sloDetail := ""
	if r.SLO1Current.Runs == 0 {
		sloDetail = fmt.Sprintf("no implemented runs in the last %d days", r.SLO1Current.WindowDays)
	}

	out.Gates = []Gate{
		{Name: "hard_failures_absent", Passed: len(r.HardFailures) == 0, Gating: true,
			Observed: len(r.HardFailures), Expected: 0},
		{Name: "slo1_current_target", Passed: r.SLO1Current.Met(), Gating: true,
			Observed: current, Expected: r.SLO1Current.TargetPct, Detail: sloDetail},
		{Name: "unresolved_failed_checks_absent", Passed: len(unresolved) == 0, Gating: true,
			Observed: len(unresolved), Expected: 0},
		{Name: "scorecard_fail_absent", Passed: scorecard["fail"] == 0, Gating: true,
			Observed: scorecard["fail"], Expected: 0},
		{Name: "warnings_absent", Passed: len(out.Warnings) == 0, Gating: opts.Strict,
			Observed: len(out.Warnings), Expected: 0},
	}

	out.Status = Ready
	for _, g := range out.Gates {
		if g.Gating && !g.Passed {
			out.Status = NotReady
		}
	}
	return out
}

// FailedGates lists the gating gates that did not pass.
func (r Robustness) FailedGates() []string {
	var out []string
	for _, g := range r.Gates {
		if g.Gating && !g.Passed {
			out = append(out, g.Name)
		}
	}
	return out
}
