package bronze

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

var validate = validator.New()

// Manifest is the provenance document written beside every bronze artifact.
type Manifest struct {
	Source          string            `yaml:"source" validate:"required"`
	Dataset         string            `yaml:"dataset" validate:"required"`
	TerritoryCode   string            `yaml:"territory_code" validate:"required"`
	TerritoryScope  string            `yaml:"territory_scope" validate:"required"`
	ReferencePeriod string            `yaml:"reference_period" validate:"required"`
	ExtractedAtUTC  string            `yaml:"extracted_at_utc" validate:"required"`
	Raw             RawSection        `yaml:"raw"`
	Ingestion       IngestionSection  `yaml:"ingestion"`
	Validation      ValidationSection `yaml:"validation"`
	Load            LoadSection       `yaml:"load"`
}

type RawSection struct {
	Format         string `yaml:"format" validate:"required"`
	URI            string `yaml:"uri" validate:"required"`
	LocalPath      string `yaml:"local_path" validate:"required"`
	SizeBytes      int64  `yaml:"size_bytes" validate:"gte=0"`
	ChecksumSHA256 string `yaml:"checksum_sha256" validate:"required,len=64,hexadecimal"`
}

type IngestionSection struct {
	Tool            string `yaml:"tool" validate:"required"`
	Orchestrator    string `yaml:"orchestrator"`
	PipelineVersion string `yaml:"pipeline_version" validate:"required"`
	RunID           string `yaml:"run_id"`
}

type ValidationSection struct {
	SchemaVersion string          `yaml:"schema_version"`
	Checks        []ManifestCheck `yaml:"checks"`
}

// ManifestCheck is the summary of one run check copied into the manifest.
type ManifestCheck struct {
	Name           string   `yaml:"name" validate:"required"`
	Status         string   `yaml:"status" validate:"required,oneof=pass warn fail"`
	ObservedValue  *float64 `yaml:"observed_value,omitempty"`
	ThresholdValue *float64 `yaml:"threshold_value,omitempty"`
}

type LoadSection struct {
	Destination   string      `yaml:"destination"`
	TablesWritten []string    `yaml:"tables_written"`
	RowsWritten   []TableRows `yaml:"rows_written"`
}

// TableRows counts rows written to one table.
type TableRows struct {
	Table string `yaml:"table"`
	Rows  int64  `yaml:"rows"`
}

var (
	requiredManifestKeys = []string{
		"source", "dataset", "territory_code", "territory_scope", "reference_period",
		"extracted_at_utc", "raw", "ingestion", "validation", "load",
	}
	requiredRawKeys = []string{"format", "uri", "local_path", "size_bytes", "checksum_sha256"}
)

// Validate checks required fields on a manifest built in memory.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errs.E(errs.KindValidation, "validate manifest", err)
	}
	for _, c := range m.Validation.Checks {
		if err := validate.Struct(c); err != nil {
			return errs.E(errs.KindValidation, "validate manifest check "+c.Name, err)
		}
	}
	return nil
}

// ValidateManifestDocument checks a decoded YAML document for the required
// top-level and raw.* keys. Extra keys are tolerated.
func ValidateManifestDocument(doc map[string]any) error {
	var missing []string
	for _, k := range requiredManifestKeys {
		if _, ok := doc[k]; !ok {
			missing = append(missing, k)
		}
	}
	raw, _ := doc["raw"].(map[string]any)
	if raw == nil {
		if _, present := doc["raw"]; present {
			missing = append(missing, "raw (not a mapping)")
		}
	} else {
		for _, k := range requiredRawKeys {
			if _, ok := raw[k]; !ok {
				missing = append(missing, "raw."+k)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errs.Errorf(errs.KindValidation, "manifest missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadManifest reads and validates a manifest YAML file.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errs.E(errs.KindValidation, "parse manifest "+path, err)
	}
	if err := ValidateManifestDocument(doc); err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, errs.E(errs.KindValidation, "decode manifest "+path, err)
	}
	return &m, nil
}
