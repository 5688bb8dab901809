package quality

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

// Thresholds holds the tunable limits of the suite. Keys under Tables
// override Defaults for that table only.
type Thresholds struct {
	Defaults map[string]float64            `yaml:"defaults"`
	Tables   map[string]map[string]float64 `yaml:"tables"`
}

// LoadThresholds reads configs/quality_thresholds.yml.
func LoadThresholds(path string) (Thresholds, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, errs.E(errs.KindConfiguration, "read quality thresholds", err)
	}
	var t Thresholds
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Thresholds{}, errs.E(errs.KindConfiguration, "parse quality thresholds", err)
	}
	return t, nil
}

// Value resolves key for table: table override, then defaults, then fallback.
func (t Thresholds) Value(table, key string, fallback float64) float64 {
	if v, ok := t.Tables[table][key]; ok {
		return v
	}
	if v, ok := t.Defaults[key]; ok {
		return v
	}
	return fallback
}
