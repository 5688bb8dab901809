// Package ops writes the operational tables: pipeline runs, their checks and
// the connector registry.
package ops

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Check is a quality verdict before it is bound to a run.
type Check struct {
	Name           string             `json:"name"`
	Status         models.CheckStatus `json:"status"`
	Details        map[string]any     `json:"details,omitempty"`
	ObservedValue  any                `json:"observed_value"`
	ThresholdValue any                `json:"threshold_value"`
}

// Pass, Warn and Fail build checks with an observed/threshold pair.
func Pass(name string, observed, threshold any, details map[string]any) Check {
	return Check{Name: name, Status: models.CheckPass, ObservedValue: observed, ThresholdValue: threshold, Details: details}
}

func Warn(name string, observed, threshold any, details map[string]any) Check {
	return Check{Name: name, Status: models.CheckWarn, ObservedValue: observed, ThresholdValue: threshold, Details: details}
}

func Fail(name string, observed, threshold any, details map[string]any) Check {
	return Check{Name: name, Status: models.CheckFail, ObservedValue: observed, ThresholdValue: threshold, Details: details}
}

// Worst returns the most severe status among checks (pass when empty).
func Worst(checks []Check) models.CheckStatus {
	worst := models.CheckPass
	for _, c := range checks {
		if models.CheckRank(c.Status) > models.CheckRank(worst) {
			worst = c.Status
		}
	}
	return worst
}

// CountStatus counts checks with status s.
func CountStatus(checks []Check, s models.CheckStatus) int {
	n := 0
	for _, c := range checks {
		if c.Status == s {
			n++
		}
	}
	return n
}

// NumericValue coerces integers, floats and decimals. Booleans, strings and
// everything else yield nil, as do NaN and infinities.
func NumericValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case int:
		f = float64(t)
	case int8:
		f = float64(t)
	case int16:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint8:
		f = float64(t)
	case uint16:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case float32:
		f = float64(t)
	case float64:
		f = t
	case *float64:
		if t == nil {
			return nil
		}
		f = *t
	case decimal.Decimal:
		f = t.InexactFloat64()
	case *decimal.Decimal:
		if t == nil {
			return nil
		}
		f = t.InexactFloat64()
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// UpsertPipelineRun inserts or replaces the run keyed by run_id.
// duration_seconds is derived from the started/finished pair.
func UpsertPipelineRun(tx *gorm.DB, run models.PipelineRun) error {
	if run.FinishedAtUTC != nil {
		d := run.FinishedAtUTC.Sub(run.StartedAtUTC).Seconds()
		if d < 0 {
			d = 0
		}
		run.DurationSeconds = &d
	}
	if len(run.Details) == 0 {
		run.Details = models.NewJSONB(map[string]any{})
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		UpdateAll: true,
	}).Create(&run).Error
	return db.Classify("upsert pipeline_run", err)
}

// ReplacePipelineChecks deletes the run's checks and inserts the new set in
// one (nested) transaction.
func ReplacePipelineChecks(tx *gorm.DB, runID uuid.UUID, checks []Check) error {
	return tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&models.PipelineCheck{}).Error; err != nil {
			return db.Classify("delete pipeline_checks", err)
		}
		if len(checks) == 0 {
			return nil
		}
		rows := CheckRows(runID, checks, time.Now().UTC())
		if err := tx.Create(&rows).Error; err != nil {
			return db.Classify("insert pipeline_checks", err)
		}
		return nil
	})
}

// CheckRows converts checks to rows bound to runID.
func CheckRows(runID uuid.UUID, checks []Check, now time.Time) []models.PipelineCheck {
	rows := make([]models.PipelineCheck, 0, len(checks))
	for _, c := range checks {
		details := c.Details
		if details == nil {
			details = map[string]any{}
		}
		rows = append(rows, models.PipelineCheck{
			CheckID:        uuid.New(),
			RunID:          runID,
			CheckName:      c.Name,
			Status:         c.Status,
			Details:        models.NewJSONB(details),
			ObservedValue:  NumericValue(c.ObservedValue),
			ThresholdValue: NumericValue(c.ThresholdValue),
			CreatedAt:      now,
		})
	}
	return rows
}
