package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/reports"
)

type reportFlags struct {
	strict     bool
	outputJSON string
}

func (f *reportFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Count warnings as failures")
	cmd.Flags().StringVar(&f.outputJSON, "output-json", "", "Also write the report as JSON to PATH (- for stdout)")
}

func bindReadiness(cmd *cobra.Command, o *reports.ReadinessOptions) {
	cmd.Flags().IntVar(&o.WindowDays, "window-days", 7, "SLO-1 window in days")
	cmd.Flags().IntVar(&o.HealthWindowDays, "health-window-days", 1, "Current-health window in days")
	cmd.Flags().Float64Var(&o.SLO1TargetPct, "slo1-target", 95, "SLO-1 target success rate in percent")
	cmd.Flags().BoolVar(&o.IncludeBlockedAsSuccess, "include-blocked-as-success", false, "Count blocked runs as successes")
}

// publish writes the report under the reports root and, when asked, to the
// --output-json target. It returns the snapshot path.
func (a *app) publish(name string, f reportFlags, now time.Time, v any) (string, error) {
	path := reports.SnapshotPath(a.settings.ReportsRoot(), name, now)
	if err := reports.WriteSnapshot(path, a.out, v); err != nil {
		return "", err
	}
	if f.outputJSON != "" {
		if err := reports.WriteSnapshot(f.outputJSON, a.out, v); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (a *app) readinessCmd() *cobra.Command {
	var (
		f    reportFlags
		opts reports.ReadinessOptions
	)
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Backend readiness report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			r, err := reports.BuildReadiness(ctx, reports.NewSQLStore(a.db), opts)
			if err != nil {
				return err
			}
			path, err := a.publish("readiness", f, r.GeneratedAt, r)
			if err != nil {
				return err
			}
			a.summary("readiness status=%s hard_failures=%d warnings=%d slo1=%s slo1_current=%s report=%s",
				r.Status, len(r.HardFailures), len(r.Warnings), pctOrNA(r.SLO1.SuccessRatePct), pctOrNA(r.SLO1Current.SuccessRatePct), path)
			if readinessFailed(r, f.strict) {
				return ErrUnhealthy
			}
			return nil
		},
	}
	f.bind(cmd)
	bindReadiness(cmd, &opts)
	return cmd
}

// readinessFailed is true on hard failures, or on warnings in strict mode.
func readinessFailed(r reports.Readiness, strict bool) bool {
	return len(r.HardFailures) > 0 || (strict && len(r.Warnings) > 0)
}

func (a *app) robustnessCmd() *cobra.Command {
	var (
		f    reportFlags
		opts reports.RobustnessOptions
	)
	cmd := &cobra.Command{
		Use:   "robustness",
		Short: "Ops robustness window gate matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			opts.Strict = f.strict
			opts.WindowDays = opts.Readiness.WindowDays
			r, err := reports.BuildRobustness(ctx, reports.NewSQLStore(a.db), opts)
			if err != nil {
				return err
			}
			path, err := a.publish("robustness", f, r.GeneratedAt, r)
			if err != nil {
				return err
			}
			a.summary("robustness status=%s strict=%t failed_gates=%v warnings=%d report=%s",
				r.Status, r.Strict, r.FailedGates(), len(r.Warnings), path)
			if r.Status != reports.Ready {
				return ErrUnhealthy
			}
			return nil
		},
	}
	f.bind(cmd)
	bindReadiness(cmd, &opts.Readiness)
	return cmd
}

func (a *app) incidentsCmd() *cobra.Command {
	var (
		f    reportFlags
		opts reports.IncidentOptions
	)
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "Recent failed and blocked runs with failing checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			inc, err := reports.BuildIncidents(ctx, reports.NewSQLStore(a.db), opts)
			if err != nil {
				return err
			}
			path, err := a.publish("incidents", f, inc.GeneratedAt, inc)
			if err != nil {
				return err
			}
			a.summary("incidents severity=%s failed_runs=%d blocked_runs=%d failed_checks=%d report=%s",
				inc.Severity, inc.Counts.FailedRuns, inc.Counts.BlockedRuns, inc.Counts.FailedChecks, path)
			if incidentsFailed(inc, f.strict) {
				return ErrUnhealthy
			}
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVar(&opts.LookbackHours, "lookback-hours", 24, "Lookback window in hours")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum rows per list")
	return cmd
}

// incidentsFailed is true on critical severity, or on high severity in strict mode.
func incidentsFailed(inc reports.Incidents, strict bool) bool {
	switch inc.Severity {
	case reports.SeverityCritical:
		return true
	case reports.SeverityHigh:
		return strict
	}
	return false
}

func pctOrNA(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *p)
}
