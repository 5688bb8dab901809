package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunSuccess        RunStatus = "success"
	RunFailed         RunStatus = "failed"
	RunBlocked        RunStatus = "blocked"
	RunNotImplemented RunStatus = "not_implemented"
)

// CheckStatus is the verdict of a quality check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// CheckRank orders verdicts so the worst of a set can be picked with max.
func CheckRank(s CheckStatus) int {
	switch s {
	case CheckFail:
		return 2
	case CheckWarn:
		return 1
	default:
		return 0
	}
}

// PipelineRun is the append-then-update record of one connector invocation.
type PipelineRun struct {
	RunID           uuid.UUID  `gorm:"type:uuid;primaryKey;column:run_id" json:"run_id"`
	JobName         string     `gorm:"column:job_name;not null;index" json:"job_name"`
	Source          string     `gorm:"column:source;not null" json:"source"`
	Dataset         string     `gorm:"column:dataset;not null" json:"dataset"`
	Wave            string     `gorm:"column:wave" json:"wave"`
	ReferencePeriod string     `gorm:"column:reference_period" json:"reference_period"`
	StartedAtUTC    time.Time  `gorm:"column:started_at_utc;not null;index" json:"started_at_utc"`
	FinishedAtUTC   *time.Time `gorm:"column:finished_at_utc" json:"finished_at_utc,omitempty"`
	DurationSeconds *float64   `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	Status          RunStatus  `gorm:"column:status;not null;index" json:"status"`
	RowsExtracted   int64      `gorm:"column:rows_extracted;not null;default:0" json:"rows_extracted"`
	RowsLoaded      int64      `gorm:"column:rows_loaded;not null;default:0" json:"rows_loaded"`
	WarningsCount   int        `gorm:"column:warnings_count;not null;default:0" json:"warnings_count"`
	ErrorsCount     int        `gorm:"column:errors_count;not null;default:0" json:"errors_count"`
	BronzePath      *string    `gorm:"column:bronze_path" json:"bronze_path,omitempty"`
	ManifestPath    *string    `gorm:"column:manifest_path" json:"manifest_path,omitempty"`
	ChecksumSHA256  *string    `gorm:"column:checksum_sha256" json:"checksum_sha256,omitempty"`
	Details         JSONB      `gorm:"column:details;type:jsonb" json:"details"`
}

func (PipelineRun) TableName() string { return "ops.pipeline_runs" }

// PipelineCheck is one quality verdict scoped to a run.
type PipelineCheck struct {
	CheckID        uuid.UUID   `gorm:"type:uuid;primaryKey;column:check_id" json:"check_id"`
	RunID          uuid.UUID   `gorm:"type:uuid;column:run_id;not null;index" json:"run_id"`
	CheckName      string      `gorm:"column:check_name;not null" json:"check_name"`
	Status         CheckStatus `gorm:"column:status;not null" json:"status"`
	Details        JSONB       `gorm:"column:details;type:jsonb" json:"details"`
	ObservedValue  *float64    `gorm:"column:observed_value" json:"observed_value"`
	ThresholdValue *float64    `gorm:"column:threshold_value" json:"threshold_value"`
	CreatedAt      time.Time   `gorm:"column:created_at;not null" json:"created_at"`
}

func (PipelineCheck) TableName() string { return "ops.pipeline_checks" }

// ConnectorStatus is the declared capability of a connector.
type ConnectorStatus string

const (
	ConnectorImplemented ConnectorStatus = "implemented"
	ConnectorPartial     ConnectorStatus = "partial"
	ConnectorPlanned     ConnectorStatus = "planned"
	ConnectorBlocked     ConnectorStatus = "blocked"
)

// ConnectorRegistry declares one connector's capability.
type ConnectorRegistry struct {
	ConnectorName string          `gorm:"primaryKey;column:connector_name" json:"connector_name" yaml:"connector_name"`
	Source        string          `gorm:"column:source;not null" json:"source" yaml:"source"`
	Wave          string          `gorm:"column:wave;not null" json:"wave" yaml:"wave"`
	Status        ConnectorStatus `gorm:"column:status;not null" json:"status" yaml:"status"`
	Notes         string          `gorm:"column:notes" json:"notes" yaml:"notes"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;not null" json:"updated_at" yaml:"-"`
}

func (ConnectorRegistry) TableName() string { return "ops.connector_registry" }

// ContractStatus marks whether a schema contract is current.
type ContractStatus string

const (
	ContractActive     ContractStatus = "active"
	ContractDeprecated ContractStatus = "deprecated"
)

// SchemaContract declares the expected shape of a connector's target table.
type SchemaContract struct {
	ConnectorName   string         `gorm:"column:connector_name;primaryKey" json:"connector_name"`
	TargetTable     string         `gorm:"column:target_table;primaryKey" json:"target_table"`
	SchemaVersion   string         `gorm:"column:schema_version;primaryKey" json:"schema_version"`
	Source          string         `gorm:"column:source;not null" json:"source"`
	Dataset         string         `gorm:"column:dataset;not null" json:"dataset"`
	EffectiveFrom   time.Time      `gorm:"column:effective_from;type:date;not null" json:"effective_from"`
	Status          ContractStatus `gorm:"column:status;not null;index" json:"status"`
	RequiredColumns pq.StringArray `gorm:"column:required_columns;type:text[]" json:"required_columns"`
	OptionalColumns pq.StringArray `gorm:"column:optional_columns;type:text[]" json:"optional_columns"`
	ColumnTypes     JSONB          `gorm:"column:column_types;type:jsonb" json:"column_types"`
	Constraints     JSONB          `gorm:"column:constraints;type:jsonb" json:"constraints"`
	SourceURI       string         `gorm:"column:source_uri" json:"source_uri"`
	Notes           string         `gorm:"column:notes" json:"notes"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (SchemaContract) TableName() string { return "ops.schema_contracts" }

// All lists every model managed by this module, in dependency order.
func All() []any {
	return []any{
		&DimTerritory{},
		&FactIndicator{},
		&FactElectorate{},
		&FactElectionResult{},
		&FactSocialProtection{},
		&FactSocialAssistanceNetwork{},
		&PipelineRun{},
		&PipelineCheck{},
		&ConnectorRegistry{},
		&SchemaContract{},
	}
}
