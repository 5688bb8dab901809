// Package reports derives readiness, robustness and incident reports from
// the ops tables. Reports only read.
package reports

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// JobRunStats counts one job's runs in a window.
type JobRunStats struct {
	Job       string `json:"job"`
	Runs      int    `json:"runs"`
	Successes int    `json:"successes"`
	Blocked   int    `json:"blocked"`
	Failed    int    `json:"failed"`
}

// CheckCoverage counts implemented runs and those with at least one check.
type CheckCoverage struct {
	Runs           int `json:"runs"`
	RunsWithChecks int `json:"runs_with_checks"`
}

// RunSummary is one pipeline run as incident reports show it.
type RunSummary struct {
	RunID           string           `json:"run_id"`
	Job             string           `json:"job"`
	Status          models.RunStatus `json:"status"`
	ReferencePeriod string           `json:"reference_period"`
	StartedAt       time.Time        `json:"started_at_utc"`
	ErrorsCount     int              `json:"errors_count"`
}

// FailedCheck is a failing check with the run it belongs to.
type FailedCheck struct {
	Job       string    `json:"job"`
	Check     string    `json:"check"`
	RunID     string    `json:"run_id,omitempty"`
	FailedAt  time.Time `json:"failed_at_utc"`
	Failures  int       `json:"failures,omitempty"`
	Observed  *float64  `json:"observed_value,omitempty"`
	Threshold *float64  `json:"threshold_value,omitempty"`
}

// Store is the read side the reports need.
type Store interface {
	ExtensionInstalled(ctx context.Context, name string) (bool, error)
	ExistingTables(ctx context.Context, qualified []string) (map[string]bool, error)
	RegistryCounts(ctx context.Context) (map[models.ConnectorStatus]int, error)
	JobRunStats(ctx context.Context, since time.Time) ([]JobRunStats, error)
	CheckCoverage(ctx context.Context, since time.Time) (CheckCoverage, error)
	LegacyProbeRows(ctx context.Context) (int64, error)
	// ScorecardCounts counts coverage-scorecard metrics by status. ok is
	// false when the view does not exist.
	ScorecardCounts(ctx context.Context) (counts map[string]int, ok bool, err error)
	UnresolvedFailedChecks(ctx context.Context, since time.Time) ([]FailedCheck, error)
	// Runs returns up to limit runs with status since, newest first, plus
	// the total count.
	Runs(ctx context.Context, since time.Time, status models.RunStatus, limit int) ([]RunSummary, int, error)
	FailedChecks(ctx context.Context, since time.Time, limit int) ([]FailedCheck, int, error)
}

// SQLStore implements Store on the warehouse.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(d *gorm.DB) *SQLStore { return &SQLStore{db: d} }

func (s *SQLStore) ExtensionInstalled(ctx context.Context, name string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM pg_extension WHERE extname = ?`, name).Scan(&n).Error
	if err != nil {
		return false, db.Classify("read pg_extension", err)
	}
	return n > 0, nil
}

func (s *SQLStore) ExistingTables(ctx context.Context, qualified []string) (map[string]bool, error) {
	out := map[string]bool{}
	if len(qualified) == 0 {
		return out, nil
	}
	var names []string
	err := s.db.WithContext(ctx).Raw(`SELECT table_schema || '.' || table_name FROM information_schema.tables
WHERE table_schema || '.' || table_name IN ?`, qualified).Scan(&names).Error
	if err != nil {
		return nil, db.Classify("read information_schema.tables", err)
	}
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (s *SQLStore) RegistryCounts(ctx context.Context) (map[models.ConnectorStatus]int, error) {
	var rows []struct {
		Status models.ConnectorStatus
		N      int
	}
	err := s.db.WithContext(ctx).Raw(`SELECT status, COUNT(*) AS n FROM ops.connector_registry GROUP BY status`).Scan(&rows).Error
	if err != nil {
		return nil, db.Classify("count connector_registry", err)
	}
	out := map[models.ConnectorStatus]int{}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func (s *SQLStore) JobRunStats(ctx context.Context, since time.Time) ([]JobRunStats, error) {
	var rows []JobRunStats
	err := s.db.WithContext(ctx).Raw(`SELECT p.job_name AS job,
  COUNT(*) AS runs,
  COUNT(*) FILTER (WHERE p.status = 'success') AS successes,
  COUNT(*) FILTER (WHERE p.status = 'blocked') AS blocked,
  COUNT(*) FILTER (WHERE p.status = 'failed') AS failed
FROM ops.pipeline_runs p
JOIN ops.connector_registry r ON r.connector_name = p.job_name AND r.status = 'implemented'
WHERE p.started_at_utc >= ?
GROUP BY p.job_name
ORDER BY p.job_name`, since).Scan(&rows).Error
	if err != nil {
		return nil, db.Classify("aggregate pipeline_runs", err)
	}
	return rows, nil
}

func (s *SQLStore) CheckCoverage(ctx context.Context, since time.Time) (CheckCoverage, error) {
	var c CheckCoverage
	err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) AS runs,
  COUNT(*) FILTER (WHERE EXISTS (SELECT 1 FROM ops.pipeline_checks c WHERE c.run_id = p.run_id)) AS runs_with_checks
FROM ops.pipeline_runs p
JOIN ops.connector_registry r ON r.connector_name = p.job_name AND r.status = 'implemented'
WHERE p.started_at_utc >= ?`, since).Scan(&c).Error
	if err != nil {
		return c, db.Classify("aggregate pipeline_checks", err)
	}
	return c, nil
}

func (s *SQLStore) LegacyProbeRows(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM silver.fact_indicator WHERE indicator_code LIKE 'source_probe%'`).Scan(&n).Error
	if db.IsUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, db.Classify("count legacy probe rows", err)
	}
	return n, nil
}

func (s *SQLStore) ScorecardCounts(ctx context.Context) (map[string]int, bool, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := s.db.WithContext(ctx).Raw(`SELECT metric_status AS status, COUNT(*) AS n
FROM ops.v_data_coverage_scorecard GROUP BY metric_status`).Scan(&rows).Error
	if db.IsUndefinedTable(err) {
		return map[string]int{}, false, nil
	}
	if err != nil {
		return nil, false, db.Classify("read coverage scorecard", err)
	}
	out := map[string]int{}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, true, nil
}

func (s *SQLStore) UnresolvedFailedChecks(ctx context.Context, since time.Time) ([]FailedCheck, error) {
	var rows []FailedCheck
	err := s.db.WithContext(ctx).Raw(`SELECT p.job_name AS job, c.check_name AS "check",
  MAX(p.started_at_utc) AS failed_at, COUNT(*) AS failures
FROM ops.pipeline_checks c
JOIN ops.pipeline_runs p ON p.run_id = c.run_id
WHERE c.status = 'fail' AND p.started_at_utc >= ?
  AND NOT EXISTS (
    SELECT 1 FROM ops.pipeline_checks c2
    JOIN ops.pipeline_runs p2 ON p2.run_id = c2.run_id
    WHERE p2.job_name = p.job_name AND c2.check_name = c.check_name
      AND c2.status = 'pass' AND p2.started_at_utc > p.started_at_utc
  )
GROUP BY p.job_name, c.check_name
ORDER BY failed_at DESC`, since).Scan(&rows).Error
	if err != nil {
		return nil, db.Classify("find unresolved failed checks", err)
	}
	return rows, nil
}

func (s *SQLStore) Runs(ctx context.Context, since time.Time, status models.RunStatus, limit int) ([]RunSummary, int, error) {
	var (
		rows  []RunSummary
		total int64
	)
	q := s.db.WithContext(ctx).Model(&models.PipelineRun{}).Where("status = ? AND started_at_utc >= ?", status, since)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, db.Classify("count pipeline_runs", err)
	}
	err := s.db.WithContext(ctx).Raw(`SELECT run_id::text AS run_id, job_name AS job, status, reference_period,
  started_at_utc AS started_at, errors_count
FROM ops.pipeline_runs
WHERE status = ? AND started_at_utc >= ?
ORDER BY started_at_utc DESC
LIMIT ?`, status, since, limit).Scan(&rows).Error
	if err != nil {
		return nil, 0, db.Classify("list pipeline_runs", err)
	}
	return rows, int(total), nil
}

func (s *SQLStore) FailedChecks(ctx context.Context, since time.Time, limit int) ([]FailedCheck, int, error) {
	var (
		rows  []FailedCheck
		total int64
	)
	err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM ops.pipeline_checks c
JOIN ops.pipeline_runs p ON p.run_id = c.run_id
WHERE c.status = 'fail' AND p.started_at_utc >= ?`, since).Scan(&total).Error
	if err != nil {
		return nil, 0, db.Classify("count failed checks", err)
	}
	err = s.db.WithContext(ctx).Raw(`SELECT p.job_name AS job, c.check_name AS "check", c.run_id::text AS run_id,
  p.started_at_utc AS failed_at, c.observed_value AS observed, c.threshold_value AS threshold
FROM ops.pipeline_checks c
JOIN ops.pipeline_runs p ON p.run_id = c.run_id
WHERE c.status = 'fail' AND p.started_at_utc >= ?
ORDER BY p.started_at_utc DESC
LIMIT ?`, since, limit).Scan(&rows).Error
	if err != nil {
		return nil, 0, db.Classify("list failed checks", err)
	}
	return rows, int(total), nil
}
