// Package connector runs ingestion jobs through one lifecycle: resolve the
// municipality, run the job body, upsert its batch, persist bronze and record
// the run with its checks, all inside one transaction.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/bronze"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/datasource"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/metrics"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// PreviewRows caps the rows returned by a dry run.
const PreviewRows = 20

var periodRe = regexp.MustCompile(`^\d{4}(-\d{2})?$`)

// ValidatePeriod accepts YYYY and YYYY-MM tokens.
func ValidatePeriod(p string) error {
	if !periodRe.MatchString(p) {
		return errs.Errorf(errs.KindConfiguration, "invalid reference_period %q (want YYYY or YYYY-MM)", p)
	}
	return nil
}

// JobMeta identifies a job in ops rows and manifests.
type JobMeta struct {
	Name    string
	Source  string
	Dataset string
	Wave    string
	// Table is the warehouse table the job fills. Warehouse-wide jobs leave it empty.
	Table string

	// SkipMunicipality runs the body without a resolved municipality. The
	// administrative bootstrap and the warehouse-wide jobs set it.
	SkipMunicipality bool
	// PeriodOptional lets warehouse-wide jobs run without a period.
	PeriodOptional bool
	NotImplemented bool
}

// RunOptions are the per-invocation knobs of a job entry point.
type RunOptions struct {
	ReferencePeriod string
	Force           bool
	DryRun          bool
	MaxRetries      *int
	Timeout         time.Duration
}

// Raw is the payload a body hands to the bronze store.
type Raw struct {
	Bytes     []byte
	Extension string
	URI       string
}

// Outcome is what a job body produced.
type Outcome struct {
	// Status overrides the derived status. Empty means derive it.
	Status models.RunStatus

	// Resolved reports whether a data source was selected. SourceType names it.
	Resolved   bool
	SourceType datasource.SourceType
	SourceURI  string
	SourceFile string

	RowsExtracted int64
	Batch         warehouse.Batch
	Raw           *Raw

	// Checks are appended to the standard ones, or replace them when
	// OwnChecks is set.
	Checks    []ops.Check
	OwnChecks bool

	Warnings []string
	Details  map[string]any
	Preview  any

	// Persist runs extra writes inside the run transaction, after the batch.
	Persist func(ctx context.Context, w warehouse.Writer, out *Outcome) error
	// RowsWritten is added to the batch counts, for rows Persist writes.
	RowsWritten int64
}

func (o *Outcome) Warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// RunContext is what a body receives.
type RunContext struct {
	RunID        uuid.UUID
	Job          JobMeta
	Options      RunOptions
	Municipality territory.Municipality
	StartedAt    time.Time
	Env          *Env
	Log          *slog.Logger
}

// Body is the job-specific part of a run.
type Body func(ctx context.Context, rc *RunContext) (*Outcome, error)

// Result is the stable shape every job entry point returns.
type Result struct {
	Job             string           `json:"job"`
	Status          models.RunStatus `json:"status"`
	RunID           string           `json:"run_id"`
	ReferencePeriod string           `json:"reference_period"`
	DurationSeconds float64          `json:"duration_seconds"`
	RowsExtracted   int64            `json:"rows_extracted"`
	RowsWritten     int64            `json:"rows_written"`
	Warnings        []string         `json:"warnings"`
	Errors          []string         `json:"errors"`
	Checks          []ops.Check      `json:"checks,omitempty"`
	Bronze          *bronze.Artifact `json:"bronze,omitempty"`
	Preview         any              `json:"preview,omitempty"`
}

// OK reports whether the run ended in success.
func (r Result) OK() bool { return r.Status == models.RunSuccess }

// BronzeWriter persists raw payloads. *bronze.Store implements it.
type BronzeWriter interface {
	PersistRawBytes(ctx context.Context, req bronze.PersistRequest) (bronze.Artifact, error)
}

// Runtime executes jobs against one warehouse.
type Runtime struct {
	store   warehouse.Store
	bronze  BronzeWriter
	env     *Env
	metrics *metrics.Recorder
	log     *slog.Logger
	now     func() time.Time
}

// Deps wires a Runtime. Bronze and Metrics may be nil.
type Deps struct {
	Store   warehouse.Store
	Bronze  BronzeWriter
	Env     *Env
	Metrics *metrics.Recorder
	Log     *slog.Logger
}

func NewRuntime(d Deps) *Runtime {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	env := d.Env
	if env == nil {
		env = &Env{}
	}
	if env.Log == nil {
		env.Log = log
	}
	return &Runtime{store: d.Store, bronze: d.Bronze, env: env, metrics: d.Metrics, log: log, now: time.Now}
}

// Env returns the environment handed to bodies.
func (r *Runtime) Env() *Env { return r.env }

// Execute runs body for job. Errors never escape; they are reported in the
// result and, when possible, in a failed pipeline run.
func (r *Runtime) Execute(ctx context.Context, job JobMeta, opts RunOptions, body Body) Result {
	rc := &RunContext{
		RunID:     uuid.New(),
		Job:       job,
		Options:   opts,
		StartedAt: r.now().UTC(),
		Env:       r.env,
	}
	rc.Log = r.log.With("job", job.Name, "run_id", rc.RunID.String(), "reference_period", opts.ReferencePeriod)
	rc.Log.Info("run started", "force", opts.Force, "dry_run", opts.DryRun)

	res := r.execute(ctx, rc, body)

	res.DurationSeconds = r.now().UTC().Sub(rc.StartedAt).Seconds()
	r.metrics.ObserveRun(job.Name, string(res.Status), time.Duration(res.DurationSeconds*float64(time.Second)), res.RowsWritten)
	for _, c := range res.Checks {
		r.metrics.ObserveCheck(job.Name, string(c.Status))
	}
	if err := r.metrics.WriteTextfile(r.env.Settings.MetricsTextfile); err != nil {
		rc.Log.Warn("metrics textfile not written", "error", err)
	}
	rc.Log.Info("run finished",
		"status", res.Status,
		"rows_extracted", res.RowsExtracted,
		"rows_written", res.RowsWritten,
		"warnings", len(res.Warnings),
		"errors", len(res.Errors),
		"duration_seconds", res.DurationSeconds,
	)
	return res
}

func (r *Runtime) execute(ctx context.Context, rc *RunContext, body Body) Result {
	res := Result{
		Job:             rc.Job.Name,
		RunID:           rc.RunID.String(),
		ReferencePeriod: rc.Options.ReferencePeriod,
		Warnings:        []string{},
		Errors:          []string{},
	}

	if !(rc.Job.PeriodOptional && rc.Options.ReferencePeriod == "") {
		if err := ValidatePeriod(rc.Options.ReferencePeriod); err != nil {
			return r.fail(ctx, rc, res, err)
		}
	}

	if rc.Job.NotImplemented {
		res.Status = models.RunNotImplemented
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s is not implemented yet; no data was extracted", rc.Job.Name))
		if !rc.Options.DryRun {
			if err := r.record(ctx, rc, &res, nil, nil); err != nil {
				rc.Log.Error("not_implemented run not recorded", "error", err)
			}
		}
		return res
	}

	if !rc.Job.SkipMunicipality {
		if r.store == nil {
			return r.fail(ctx, rc, res, errs.Errorf(errs.KindConfiguration, "no warehouse configured"))
		}
		m, err := r.store.ResolveMunicipality(ctx, r.env.Settings.MunicipalityIBGECode)
		if err != nil {
			return r.fail(ctx, rc, res, err)
		}
		rc.Municipality = m
		rc.Log = rc.Log.With("territory_id", m.TerritoryID.String())
	}

	out, err := body(ctx, rc)
	if err != nil {
		if !errs.Is(err, errs.KindUpstreamUnavailable) {
			return r.fail(ctx, rc, res, err)
		}
		out = &Outcome{Warnings: []string{err.Error()}}
	}
	if out == nil {
		out = &Outcome{}
	}

	res.Status = deriveStatus(out)
	res.RowsExtracted = out.RowsExtracted
	res.Warnings = append(res.Warnings, out.Warnings...)
	if res.Status == models.RunSuccess && out.Batch.Len() == 0 && out.RowsWritten == 0 && !out.OwnChecks {
		res.Warnings = append(res.Warnings, "source returned data but no rows were built")
	}

	if rc.Options.DryRun {
		res.Preview = preview(out)
		res.Checks = r.checks(out, 0)
		return res
	}
	if r.store == nil {
		return r.fail(ctx, rc, res, errs.Errorf(errs.KindConfiguration, "no warehouse configured"))
	}

	err = r.store.InTransaction(ctx, func(w warehouse.Writer) error {
		var counts []warehouse.TableCount
		if res.Status == models.RunSuccess && out.Batch.Len() > 0 {
			c, err := w.WriteBatch(ctx, out.Batch)
			if err != nil {
				return err
			}
			counts = c
		}
		if out.Persist != nil {
			if err := out.Persist(ctx, w, out); err != nil {
				return err
			}
		}
		res.RowsWritten = warehouse.Total(counts) + out.RowsWritten
		res.Checks = r.checks(out, res.RowsWritten)

		var artifact *bronze.Artifact
		if out.Raw != nil && res.Status == models.RunSuccess {
			a, err := r.persistBronze(ctx, rc, out, res.Checks, counts)
			if err != nil {
				return err
			}
			artifact = a
		}
		res.Bronze = artifact
		return r.writeRun(ctx, w, rc, &res, out, artifact)
	})
	if err != nil {
		res.RowsWritten = 0
		res.Bronze = nil
		return r.fail(ctx, rc, res, err)
	}
	return res
}

func deriveStatus(out *Outcome) models.RunStatus {
	if out.Status != "" {
		return out.Status
	}
	if !out.Resolved {
		return models.RunBlocked
	}
	if out.Batch.Len() == 0 && out.RowsWritten == 0 && out.Persist == nil && out.SourceType != datasource.SourceRemote {
		return models.RunBlocked
	}
	return models.RunSuccess
}

// checks builds the standard per-run checks followed by the body's own.
func (r *Runtime) checks(out *Outcome, rowsWritten int64) []ops.Check {
	if out.OwnChecks {
		return append([]ops.Check(nil), out.Checks...)
	}
	checks := make([]ops.Check, 0, 3+len(out.Checks))
	details := map[string]any{"source_type": string(out.SourceType)}
	if out.SourceURI != "" {
		details["source_uri"] = out.SourceURI
	}
	if out.Resolved {
		checks = append(checks, ops.Pass("data_source_resolved", 1, 1, details))
	} else {
		details["reason"] = "no usable data source"
		if len(out.Warnings) > 0 {
			details["last_warning"] = out.Warnings[len(out.Warnings)-1]
		}
		checks = append(checks, ops.Fail("data_source_resolved", 0, 1, details))
	}
	checks = append(checks, atLeastOne("rows_extracted", out.RowsExtracted))
	checks = append(checks, atLeastOne("indicator_rows_loaded", rowsWritten))
	return append(checks, out.Checks...)
}

func atLeastOne(name string, observed int64) ops.Check {
	if observed >= 1 {
		return ops.Pass(name, observed, 1, nil)
	}
	return ops.Warn(name, observed, 1, nil)
}

func (r *Runtime) persistBronze(ctx context.Context, rc *RunContext, out *Outcome, checks []ops.Check, counts []warehouse.TableCount) (*bronze.Artifact, error) {
	if r.bronze == nil {
		return nil, nil
	}
	req := bronze.PersistRequest{
		Source:          rc.Job.Source,
		Dataset:         rc.Job.Dataset,
		ReferencePeriod: periodOrNone(rc.Options.ReferencePeriod),
		Raw:             out.Raw.Bytes,
		Extension:       out.Raw.Extension,
		SourceURI:       out.Raw.URI,
		TerritoryCode:   r.env.Settings.MunicipalityIBGECode,
		TerritoryScope:  "municipality",
		RunID:           rc.RunID.String(),
		SchemaVersion:   "v1",
		ExtractedAt:     rc.StartedAt,
	}
	for _, c := range checks {
		req.Checks = append(req.Checks, bronze.ManifestCheck{
			Name:           c.Name,
			Status:         string(c.Status),
			ObservedValue:  ops.NumericValue(c.ObservedValue),
			ThresholdValue: ops.NumericValue(c.ThresholdValue),
		})
	}
	for _, c := range counts {
		req.TablesWritten = append(req.TablesWritten, c.Table)
		req.RowsWritten = append(req.RowsWritten, bronze.TableRows{Table: c.Table, Rows: c.Rows})
	}
	a, err := r.bronze.PersistRawBytes(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("persist bronze: %w", err)
	}
	rc.Log.Info("bronze persisted", "path", a.RawPath, "checksum_sha256", a.ChecksumSHA256, "size_bytes", a.SizeBytes)
	return &a, nil
}

func (r *Runtime) writeRun(ctx context.Context, w warehouse.Writer, rc *RunContext, res *Result, out *Outcome, a *bronze.Artifact) error {
	finished := r.now().UTC()
	details := map[string]any{
		"warnings": res.Warnings,
		"errors":   res.Errors,
		"force":    rc.Options.Force,
	}
	if out != nil {
		if out.SourceType != "" {
			details["source_type"] = string(out.SourceType)
		}
		if out.SourceURI != "" {
			details["source_uri"] = out.SourceURI
		}
		if out.SourceFile != "" {
			details["source_file"] = out.SourceFile
		}
		for k, v := range out.Details {
			details[k] = v
		}
	}
	run := models.PipelineRun{
		RunID:           rc.RunID,
		JobName:         rc.Job.Name,
		Source:          rc.Job.Source,
		Dataset:         rc.Job.Dataset,
		Wave:            rc.Job.Wave,
		ReferencePeriod: rc.Options.ReferencePeriod,
		StartedAtUTC:    rc.StartedAt,
		FinishedAtUTC:   &finished,
		Status:          res.Status,
		RowsExtracted:   res.RowsExtracted,
		RowsLoaded:      res.RowsWritten,
		WarningsCount:   len(res.Warnings),
		ErrorsCount:     len(res.Errors),
		Details:         models.NewJSONB(details),
	}
	if a != nil {
		run.BronzePath = &a.RawPath
		run.ManifestPath = &a.ManifestPath
		run.ChecksumSHA256 = &a.ChecksumSHA256
	}
	return w.RecordRun(ctx, run, res.Checks)
}

func (r *Runtime) record(ctx context.Context, rc *RunContext, res *Result, out *Outcome, a *bronze.Artifact) error {
	if r.store == nil {
		return errors.New("no warehouse configured")
	}
	return r.store.InTransaction(ctx, func(w warehouse.Writer) error {
		return r.writeRun(ctx, w, rc, res, out, a)
	})
}

// fail marks the run failed and records it best-effort in a fresh
// transaction. A recording failure is logged only.
func (r *Runtime) fail(ctx context.Context, rc *RunContext, res Result, err error) Result {
	res.Status = models.RunFailed
	res.Errors = append(res.Errors, err.Error())
	res.Checks = []ops.Check{ops.Fail("job_execution", 0, 1, map[string]any{
		"error":      err.Error(),
		"error_kind": string(errs.KindOf(err)),
	})}
	rc.Log.Error("run failed", "error", err, "error_kind", errs.KindOf(err))
	if rc.Options.DryRun {
		return res
	}
	if recErr := r.record(ctx, rc, &res, nil, nil); recErr != nil {
		rc.Log.Error("failed run not recorded", "error", recErr)
	}
	return res
}

func preview(out *Outcome) map[string]any {
	p := map[string]any{
		"source_type": string(out.SourceType),
		"source_uri":  out.SourceURI,
		"source_file": out.SourceFile,
		"batch_rows":  out.Batch.Len(),
	}
	if out.Preview != nil {
		p["rows"] = out.Preview
	} else {
		p["rows"] = batchPreview(out.Batch, PreviewRows)
	}
	return p
}

// batchPreview returns up to n rows of the batch, territories first.
func batchPreview(b warehouse.Batch, n int) []any {
	rows := make([]any, 0, n)
	add := func(v any) bool {
		if len(rows) >= n {
			return false
		}
		rows = append(rows, v)
		return true
	}
	for _, t := range b.Territories {
		if !add(t) {
			return rows
		}
	}
	for _, f := range b.Indicators {
		if !add(f) {
			return rows
		}
	}
	for _, f := range b.Electorate {
		if !add(f) {
			return rows
		}
	}
	for _, f := range b.ElectionResults {
		if !add(f) {
			return rows
		}
	}
	for _, f := range b.SocialProtection {
		if !add(f) {
			return rows
		}
	}
	for _, f := range b.SocialAssistance {
		if !add(f) {
			return rows
		}
	}
	return rows
}

func periodOrNone(p string) string {
	if p == "" {
		return "none"
	}
	return p
}
