package quality

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Compare is how an observed value is held against its threshold.
type Compare string

const (
	AtLeast Compare = "gte"
	AtMost  Compare = "lte"
)

// Querier returns the single scalar a probe query selects. A NULL result is
// returned as nil.
type Querier interface {
	Scalar(ctx context.Context, query string, args ...any) (*float64, error)
}

// SQLQuerier runs probes on a gorm handle.
type SQLQuerier struct {
	DB *gorm.DB
}

func (q SQLQuerier) Scalar(ctx context.Context, query string, args ...any) (*float64, error) {
	var v sql.NullFloat64
	if err := q.DB.WithContext(ctx).Raw(query, args...).Row().Scan(&v); err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Float64, nil
}

// Probe is one warehouse invariant.
type Probe struct {
	Name  string
	Table string
	Query string
	Args  []any

	Compare      Compare
	ThresholdKey string
	Fallback     float64
	// Breach is the status of a probe outside its threshold.
	Breach models.CheckStatus
	// Optional probes read tables other pipelines own; a missing table warns.
	Optional bool
}

// Evaluate runs p and turns the scalar into a check. A NULL scalar counts
// as zero.
func (p Probe) Evaluate(ctx context.Context, q Querier, th Thresholds) ops.Check {
	threshold := th.Value(p.Table, p.ThresholdKey, p.Fallback)
	details := map[string]any{
		"table":         p.Table,
		"threshold_key": p.ThresholdKey,
		"comparison":    string(p.Compare),
	}

	v, err := q.Scalar(ctx, p.Query, p.Args...)
	if err != nil {
		if p.Optional && db.IsUndefinedTable(err) {
			details["reason"] = "table_missing"
			return ops.Warn(p.Name, nil, threshold, details)
		}
		details["error"] = db.Classify("probe "+p.Name, err).Error()
		return ops.Fail(p.Name, nil, threshold, details)
	}
	observed := 0.0
	if v != nil {
		observed = *v
	}

	ok := observed >= threshold
	if p.Compare == AtMost {
		ok = observed <= threshold
	}
	if ok {
		return ops.Pass(p.Name, observed, threshold, details)
	}
	breach := p.Breach
	if breach == "" {
		breach = models.CheckFail
	}
	return ops.Check{Name: p.Name, Status: breach, ObservedValue: observed, ThresholdValue: threshold, Details: details}
}

// Evaluate runs every probe in order.
func Evaluate(ctx context.Context, q Querier, th Thresholds, probes []Probe) []ops.Check {
	checks := make([]ops.Check, 0, len(probes))
	for _, p := range probes {
		checks = append(checks, p.Evaluate(ctx, q, th))
	}
	return checks
}

// Status is failed iff any check failed. Warnings do not count.
func Status(checks []ops.Check) models.RunStatus {
	if ops.CountStatus(checks, models.CheckFail) > 0 {
		return models.RunFailed
	}
	return models.RunSuccess
}
