package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/reports"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

func TestCommandTree(t *testing.T) {
	root := NewRootCmd(&bytes.Buffer{})
	for _, path := range [][]string{
		{"run"}, {"jobs"}, {"quality"}, {"contracts", "sync"}, {"contracts", "drift"},
		{"readiness"}, {"robustness"}, {"incidents"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	cmd, _, err := root.Find([]string{"readiness"})
	require.NoError(t, err)
	for _, flag := range []string{"strict", "output-json", "window-days", "health-window-days", "slo1-target", "include-blocked-as-success"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

func TestRunUnknownJobFailsBeforeSetup(t *testing.T) {
	root := NewRootCmd(&bytes.Buffer{})
	root.SetArgs([]string{"run", "no_such_job", "--period", "2024"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown job "no_such_job"`)
}

func TestRunFlagsOptions(t *testing.T) {
	var f runFlags
	cmd := &cobra.Command{Use: "run"}
	f.bind(cmd, true)
	require.NoError(t, cmd.ParseFlags([]string{"--period", " 2024-03 ", "--force", "--timeout-seconds", "2.5"}))

	opts := f.options(cmd)
	assert.Equal(t, "2024-03", opts.ReferencePeriod)
	assert.True(t, opts.Force)
	assert.False(t, opts.DryRun)
	assert.Equal(t, 2500*time.Millisecond, opts.Timeout)
	assert.Nil(t, opts.MaxRetries, "unset flag keeps the configured retries")

	require.NoError(t, cmd.ParseFlags([]string{"--max-retries", "0"}))
	opts = f.options(cmd)
	require.NotNil(t, opts.MaxRetries)
	assert.Equal(t, 0, *opts.MaxRetries)
}

func TestRunSummaryAndExit(t *testing.T) {
	res := connector.Result{
		Job: "datasus_cnes", Status: models.RunBlocked, RunID: "r1", ReferencePeriod: "2024",
		Errors: []string{"upstream unavailable"}, DurationSeconds: 1.234,
	}
	line := runSummary(res)
	assert.Contains(t, line, "job=datasus_cnes status=blocked period=2024")
	assert.Contains(t, line, "duration=1.23s")
	assert.Contains(t, line, `error="upstream unavailable"`)
	assert.True(t, runFailed(res))

	res.Status = models.RunSuccess
	assert.False(t, runFailed(res))
}

func TestReportExitRules(t *testing.T) {
	r := reports.Readiness{Warnings: []string{"SLO-1 below target"}}
	assert.False(t, readinessFailed(r, false))
	assert.True(t, readinessFailed(r, true))
	r.HardFailures = []string{"missing table ops.pipeline_runs"}
	assert.True(t, readinessFailed(r, false))

	cases := []struct {
		severity string
		strict   bool
		want     bool
	}{
		{reports.SeverityNormal, true, false},
		{reports.SeverityHigh, false, false},
		{reports.SeverityHigh, true, true},
		{reports.SeverityCritical, false, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, incidentsFailed(reports.Incidents{Severity: tc.severity}, tc.strict), "%s strict=%t", tc.severity, tc.strict)
	}
}

func TestJobListing(t *testing.T) {
	jobs := []connector.Job{
		{Meta: connector.JobMeta{Name: "inep_censo_escolar", Source: "INEP", Wave: "MVP-1"}},
		{Meta: connector.JobMeta{Name: "quality_suite", Source: "INTERNAL", Wave: "OPS"}},
	}
	entries := []models.ConnectorRegistry{
		{ConnectorName: "inep_censo_escolar", Source: "INEP", Wave: "MVP-1", Status: models.ConnectorImplemented},
	}
	lines := jobListing(jobs, entries)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "implemented")
	assert.Contains(t, lines[1], "quality_suite")
	assert.Contains(t, lines[1], "not in registry")
}
