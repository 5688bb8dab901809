// Package indicators turns filtered tabular rows into indicator facts using
// declarative per-indicator specs.
package indicators

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/tabular"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/textnorm"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

type Aggregator string

const (
	Sum   Aggregator = "sum"
	Avg   Aggregator = "avg"
	Max   Aggregator = "max"
	Min   Aggregator = "min"
	Count Aggregator = "count"
)

// Spec declares one indicator produced from a frame.
type Spec struct {
	Code     string
	Name     string
	Unit     string
	Category string

	// Columns are candidates; the first one present in the frame is used.
	// A count spec with no columns counts rows.
	Columns    []string
	Aggregator Aggregator

	// RowFilters keeps rows whose column value, normalized, is one of the
	// listed values.
	RowFilters map[string][]string
}

// Context stamps identity fields on every produced fact.
type Context struct {
	TerritoryID     uuid.UUID
	Source          string
	Dataset         string
	ReferencePeriod string
	Now             time.Time
}

// Build applies every spec to f. Specs with no contributing rows emit nothing.
func Build(f *tabular.Frame, specs []Spec, bc Context) ([]models.FactIndicator, []string) {
	now := bc.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var (
		out      []models.FactIndicator
		warnings []string
	)
	for _, spec := range specs {
		rows, warn := applyFilters(f, spec)
		if warn != "" {
			warnings = append(warnings, warn)
			continue
		}
		value, ok, warn := aggregate(f, rows, spec)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		if !ok {
			continue
		}
		out = append(out, models.FactIndicator{
			TerritoryID:     bc.TerritoryID,
			Source:          bc.Source,
			Dataset:         bc.Dataset,
			IndicatorCode:   spec.Code,
			IndicatorName:   spec.Name,
			Unit:            spec.Unit,
			Category:        spec.Category,
			Value:           value,
			ReferencePeriod: bc.ReferencePeriod,
			UpdatedAt:       now,
		})
	}
	return out, warnings
}

func applyFilters(f *tabular.Frame, spec Spec) ([]tabular.Row, string) {
	if f == nil {
		return nil, ""
	}
	if len(spec.RowFilters) == 0 {
		return f.Rows, ""
	}
	allowed := make(map[string]map[string]bool, len(spec.RowFilters))
	for col, values := range spec.RowFilters {
		c := textnorm.Column(col)
		if !f.Has(c) {
			return nil, fmt.Sprintf("indicator %s: filter column %q not found", spec.Code, c)
		}
		set := map[string]bool{}
		for _, v := range values {
			set[textnorm.Token(v)] = true
		}
		allowed[c] = set
	}
	var rows []tabular.Row
	for _, r := range f.Rows {
		keep := true
		for c, set := range allowed {
			if !set[textnorm.Token(r[c])] {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, r)
		}
	}
	return rows, ""
}

func aggregate(f *tabular.Frame, rows []tabular.Row, spec Spec) (decimal.Decimal, bool, string) {
	var candidates []string
	for _, c := range spec.Columns {
		candidates = append(candidates, textnorm.Column(c))
	}
	col := f.FirstPresent(candidates...)

	if spec.Aggregator == Count {
		if len(candidates) == 0 {
			if len(rows) == 0 {
				return decimal.Decimal{}, false, ""
			}
			return decimal.NewFromInt(int64(len(rows))), true, ""
		}
		if col == "" {
			return decimal.Decimal{}, false, missingColumn(spec)
		}
		n := int64(0)
		for _, r := range rows {
			if r[col] != "" {
				n++
			}
		}
		if n == 0 {
			return decimal.Decimal{}, false, ""
		}
		return decimal.NewFromInt(n), true, ""
	}

	if col == "" {
		return decimal.Decimal{}, false, missingColumn(spec)
	}
	var (
		acc decimal.Decimal
		n   int64
	)
	for _, r := range rows {
		v, ok := ParseNumber(r[col])
		if !ok {
			continue
		}
		switch {
		case n == 0:
			acc = v
		case spec.Aggregator == Sum || spec.Aggregator == Avg:
			acc = acc.Add(v)
		case spec.Aggregator == Max:
			acc = decimal.Max(acc, v)
		case spec.Aggregator == Min:
			acc = decimal.Min(acc, v)
		}
		n++
	}
	if n == 0 {
		return decimal.Decimal{}, false, ""
	}
	switch spec.Aggregator {
	case Sum, Max, Min:
		return acc, true, ""
	case Avg:
		return acc.Div(decimal.NewFromInt(n)), true, ""
	default:
		return decimal.Decimal{}, false, fmt.Sprintf("indicator %s: unknown aggregator %q", spec.Code, spec.Aggregator)
	}
}

func missingColumn(spec Spec) string {
	return fmt.Sprintf("indicator %s: none of columns %v found", spec.Code, spec.Columns)
}
