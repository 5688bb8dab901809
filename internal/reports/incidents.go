package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Severity levels of an incident snapshot.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityNormal   = "normal"
)

// IncidentOptions tune the incident snapshot.
type IncidentOptions struct {
	LookbackHours int
	Limit         int
	Now           time.Time
}

// IncidentCounts are the totals severity and actions derive from.
type IncidentCounts struct {
	FailedRuns   int `json:"failed_runs"`
	BlockedRuns  int `json:"blocked_runs"`
	FailedChecks int `json:"failed_checks"`
}

// Incidents is the incident snapshot.
type Incidents struct {
	GeneratedAt        time.Time      `json:"generated_at_utc"`
	LookbackHours      int            `json:"lookback_hours"`
	Severity           string         `json:"severity"`
	Counts             IncidentCounts `json:"counts"`
	FailedRuns         []RunSummary   `json:"failed_runs"`
	BlockedRuns        []RunSummary   `json:"blocked_runs"`
	FailedChecks       []FailedCheck  `json:"failed_checks"`
	RecommendedActions []string       `json:"recommended_actions"`
}

// BuildIncidents reads the most recent failures within the lookback window.
func BuildIncidents(ctx context.Context, s Store, opts IncidentOptions) (Incidents, error) {
	if opts.LookbackHours <= 0 {
		opts.LookbackHours = 24
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	since := opts.Now.UTC().Add(-time.Duration(opts.LookbackHours) * time.Hour)

	inc := Incidents{GeneratedAt: opts.Now.UTC(), LookbackHours: opts.LookbackHours}
	var err error
	if inc.FailedRuns, inc.Counts.FailedRuns, err = s.Runs(ctx, since, models.RunFailed, opts.Limit); err != nil {
		return Incidents{}, err
	}
	if inc.BlockedRuns, inc.Counts.BlockedRuns, err = s.Runs(ctx, since, models.RunBlocked, opts.Limit); err != nil {
		return Incidents{}, err
	}
	if inc.FailedChecks, inc.Counts.FailedChecks, err = s.FailedChecks(ctx, since, opts.Limit); err != nil {
		return Incidents{}, err
	}
	inc.classify()
	return inc, nil
}

func (inc *Incidents) classify() {
	c := inc.Counts
	inc.Severity = ClassifySeverity(c)
	inc.RecommendedActions = RecommendedActions(c)
	if inc.FailedRuns == nil {
		inc.FailedRuns = []RunSummary{}
	}
	if inc.BlockedRuns == nil {
		inc.BlockedRuns = []RunSummary{}
	}
	if inc.FailedChecks == nil {
		inc.FailedChecks = []FailedCheck{}
	}
}

// ClassifySeverity is critical at three failed runs or five failed checks,
// high on any failure, normal otherwise. Blocked runs never raise it.
func ClassifySeverity(c IncidentCounts) string {
	switch {
	case c.FailedRuns >= 3 || c.FailedChecks >= 5:
		return SeverityCritical
	case c.FailedRuns > 0 || c.FailedChecks > 0:
		return SeverityHigh
	default:
		return SeverityNormal
	}
}

// RecommendedActions derives the follow-ups from the counts alone.
func RecommendedActions(c IncidentCounts) []string {
	var out []string
	if c.FailedRuns > 0 {
		out = append(out, fmt.Sprintf("Inspect the errors of %d failed runs in ops.pipeline_runs and re-run the jobs once fixed.", c.FailedRuns))
	}
	if c.BlockedRuns > 0 {
		out = append(out, fmt.Sprintf("Check upstream availability or drop manual files for %d blocked runs.", c.BlockedRuns))
	}
	if c.FailedChecks > 0 {
		out = append(out, fmt.Sprintf("Review %d failing checks in ops.pipeline_checks.", c.FailedChecks))
	}
	if c.FailedRuns >= 3 {
		out = append(out, "Pause scheduled runs of the failing jobs until the root cause is known.")
	}
	if len(out) == 0 {
		out = append(out, "No action needed.")
	}
	return out
}
