package contracts

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

// Fields are the contract attributes a config level may set. Empty values
// inherit from the level below.
type Fields struct {
	SchemaVersion   string            `yaml:"schema_version"`
	EffectiveFrom   string            `yaml:"effective_from"`
	TargetTable     string            `yaml:"target_table"`
	SourceURI       string            `yaml:"source_uri"`
	Notes           string            `yaml:"notes"`
	RequiredColumns []string          `yaml:"required_columns"`
	OptionalColumns []string          `yaml:"optional_columns"`
	ColumnTypes     map[string]string `yaml:"column_types"`
	Constraints     map[string]any    `yaml:"constraints"`
}

// Config is configs/schema_contracts.yml.
type Config struct {
	Defaults                Fields            `yaml:"defaults"`
	InternalConnectors      []string          `yaml:"internal_connectors"`
	SkipConnectors          []string          `yaml:"skip_connectors"`
	MaxConnectorsWithIssues int               `yaml:"max_connectors_with_issues"`
	Connectors              map[string]Fields `yaml:"connectors"`
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.E(errs.KindConfiguration, "read schema contract config", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errs.E(errs.KindConfiguration, "parse schema contract config", err)
	}
	if c.MaxConnectorsWithIssues < 0 {
		return Config{}, errs.Errorf(errs.KindValidation, "max_connectors_with_issues must be >= 0")
	}
	return c, nil
}

func (c Config) excluded(name string) bool {
	for _, list := range [][]string{c.InternalConnectors, c.SkipConnectors} {
		for _, n := range list {
			if n == name {
				return true
			}
		}
	}
	return false
}

// merged layers o over f.
func (f Fields) merged(o Fields) Fields {
	out := f
	if o.SchemaVersion != "" {
		out.SchemaVersion = o.SchemaVersion
	}
	if o.EffectiveFrom != "" {
		out.EffectiveFrom = o.EffectiveFrom
	}
	if o.TargetTable != "" {
		out.TargetTable = o.TargetTable
	}
	if o.SourceURI != "" {
		out.SourceURI = o.SourceURI
	}
	if o.Notes != "" {
		out.Notes = o.Notes
	}
	if len(o.RequiredColumns) > 0 {
		out.RequiredColumns = o.RequiredColumns
	}
	if len(o.OptionalColumns) > 0 {
		out.OptionalColumns = o.OptionalColumns
	}
	if len(o.ColumnTypes) > 0 {
		out.ColumnTypes = o.ColumnTypes
	}
	if len(o.Constraints) > 0 {
		out.Constraints = o.Constraints
	}
	return out
}
