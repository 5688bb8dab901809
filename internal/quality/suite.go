// Package quality evaluates warehouse invariants as the quality_suite job.
// Each invariant is one SQL probe yielding an observed value that is held
// against a threshold from configs/quality_thresholds.yml.
package quality

import (
	"context"
	"strconv"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Meta identifies the suite in pipeline_runs.
var Meta = connector.JobMeta{
	Name:             "quality_suite",
	Source:           "INTERNAL",
	Dataset:          "warehouse_quality",
	Wave:             "OPS",
	SkipMunicipality: true,
	PeriodOptional:   true,
}

// Job is the registered suite, probing the environment's database.
var Job = connector.Job{Meta: Meta, Body: run}

func init() { connector.Register(Job) }

func run(ctx context.Context, rc *connector.RunContext) (*connector.Outcome, error) {
	env := rc.Env
	if env.DB == nil {
		return nil, errs.Errorf(errs.KindConfiguration, "quality suite needs a database")
	}
	th, err := LoadThresholds(env.Settings.ThresholdsPath())
	if err != nil {
		return nil, err
	}
	registry, err := ops.LoadConnectorRegistry(env.DB)
	if err != nil {
		return nil, err
	}
	p := Params{
		MunicipalityCode: env.Settings.MunicipalityIBGECode,
		ReferencePeriod:  rc.Options.ReferencePeriod,
		IndicatorSources: IndicatorSources(registry),
	}
	if p.ReferencePeriod == "" {
		p.ReferencePeriod = strconv.Itoa(rc.StartedAt.Year())
	}
	return Outcome(ctx, SQLQuerier{DB: env.DB}, th, p), nil
}

// Outcome evaluates the catalog for p. The run fails iff a check fails.
func Outcome(ctx context.Context, q Querier, th Thresholds, p Params) *connector.Outcome {
	checks := Evaluate(ctx, q, th, Catalog(p))
	out := &connector.Outcome{
		Status:        Status(checks),
		Resolved:      true,
		RowsExtracted: int64(len(checks)),
		Checks:        checks,
		OwnChecks:     true,
		Details: map[string]any{
			"checks_total":     len(checks),
			"checks_failed":    ops.CountStatus(checks, models.CheckFail),
			"checks_warned":    ops.CountStatus(checks, models.CheckWarn),
			"reference_period": p.ReferencePeriod,
		},
	}
	for _, c := range checks {
		if c.Status == models.CheckFail {
			out.Warn("quality check %s failed", c.Name)
		}
	}
	return out
}

// IndicatorSources returns the distinct sources of implemented connectors
// whose job fills silver.fact_indicator.
func IndicatorSources(registry []models.ConnectorRegistry) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range registry {
		if e.Status != models.ConnectorImplemented || seen[e.Source] {
			continue
		}
		j, ok := connector.Lookup(e.ConnectorName)
		if !ok || j.Meta.Table != "silver.fact_indicator" {
			continue
		}
		seen[e.Source] = true
		out = append(out, e.Source)
	}
	return out
}
