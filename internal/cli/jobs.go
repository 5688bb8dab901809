package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/contracts"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/quality"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/reports"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

type runFlags struct {
	period         string
	force          bool
	dryRun         bool
	maxRetries     int
	timeoutSeconds float64
	outputJSON     string
}

func (f *runFlags) bind(cmd *cobra.Command, withPeriod bool) {
	if withPeriod {
		cmd.Flags().StringVar(&f.period, "period", "", "Reference period (YYYY or YYYY-MM)")
	}
	cmd.Flags().BoolVar(&f.force, "force", false, "Skip the bronze cache and re-download")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Extract and transform without writing")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "Override HTTP_MAX_RETRIES for this run")
	cmd.Flags().Float64Var(&f.timeoutSeconds, "timeout-seconds", 0, "Per-request timeout override")
	cmd.Flags().StringVar(&f.outputJSON, "output-json", "", "Write the run result as JSON to PATH (- for stdout)")
}

func (f *runFlags) options(cmd *cobra.Command) connector.RunOptions {
	opts := connector.RunOptions{
		ReferencePeriod: strings.TrimSpace(f.period),
		Force:           f.force,
		DryRun:          f.dryRun,
		Timeout:         time.Duration(f.timeoutSeconds * float64(time.Second)),
	}
	if cmd.Flags().Changed("max-retries") {
		n := f.maxRetries
		opts.MaxRetries = &n
	}
	return opts
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one registered job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJob(cmd, args[0], &f)
		},
	}
	f.bind(cmd, true)
	return cmd
}

func (a *app) qualityCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Run the warehouse quality suite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runJob(cmd, quality.Meta.Name, &f)
		},
	}
	f.bind(cmd, true)
	return cmd
}

func (a *app) contractsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Schema contract registry",
	}
	for _, sub := range []struct{ use, short, job string }{
		{"sync", "Build and upsert schema contracts", contracts.SyncMeta.Name},
		{"drift", "Compare active contracts with the live warehouse", contracts.DriftMeta.Name},
	} {
		var f runFlags
		job := sub.job
		c := &cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runJob(cmd, job, &f)
			},
		}
		f.bind(c, false)
		cmd.AddCommand(c)
	}
	return cmd
}

func (a *app) runJob(cmd *cobra.Command, name string, f *runFlags) error {
	if _, ok := connector.Lookup(name); !ok {
		return fmt.Errorf("unknown job %q (see %s jobs)", name, appName)
	}
	ctx := cmd.Context()
	if err := a.setup(ctx); err != nil {
		return err
	}
	rt, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	res, err := rt.Run(ctx, name, f.options(cmd))
	if err != nil {
		return err
	}
	if f.outputJSON != "" {
		if err := reports.WriteSnapshot(f.outputJSON, a.out, res); err != nil {
			return err
		}
	}
	a.summary("%s", runSummary(res))
	if runFailed(res) {
		return ErrUnhealthy
	}
	return nil
}

// runSummary is the one-line rendition of a run result.
func runSummary(res connector.Result) string {
	line := fmt.Sprintf("job=%s status=%s period=%s rows_extracted=%d rows_written=%d warnings=%d errors=%d duration=%.2fs run_id=%s",
		res.Job, res.Status, res.ReferencePeriod, res.RowsExtracted, res.RowsWritten,
		len(res.Warnings), len(res.Errors), res.DurationSeconds, res.RunID)
	if len(res.Errors) > 0 {
		line += fmt.Sprintf(" error=%q", res.Errors[0])
	}
	return line
}

// runFailed is true for failed and blocked runs.
func runFailed(res connector.Result) bool {
	return res.Status == models.RunFailed || res.Status == models.RunBlocked
}

func (a *app) jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List registered jobs with their registry status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd.Context()); err != nil {
				return err
			}
			entries, err := a.registry()
			if err != nil {
				return err
			}
			for _, line := range jobListing(connector.Jobs(), entries) {
				a.summary("%s", line)
			}
			a.summary("jobs registered=%d registry=%d implemented=%d",
				len(connector.Jobs()), len(entries), len(ops.Implemented(entries)))
			return nil
		},
	}
}

// jobListing renders registry entries in order, then registered jobs the
// registry does not know about.
func jobListing(jobs []connector.Job, entries []models.ConnectorRegistry) []string {
	known := map[string]bool{}
	lines := make([]string, 0, len(entries)+len(jobs))
	for _, e := range entries {
		known[e.ConnectorName] = true
		lines = append(lines, ops.Describe(e))
	}
	for _, j := range jobs {
		if known[j.Meta.Name] {
			continue
		}
		lines = append(lines, ops.Describe(models.ConnectorRegistry{
			ConnectorName: j.Meta.Name,
			Source:        j.Meta.Source,
			Wave:          j.Meta.Wave,
			Status:        "-",
			Notes:         "not in registry",
		}))
	}
	return lines
}
