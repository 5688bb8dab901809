// Package contracts maintains the schema-contract registry and checks the
// live warehouse catalog against it.
package contracts

import (
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

const defaultSchemaVersion = "v1"

// Eligible reports whether a registry entry gets a contract.
func Eligible(e models.ConnectorRegistry, cfg Config) bool {
	if e.Status != models.ConnectorImplemented && e.Status != models.ConnectorPartial {
		return false
	}
	return !cfg.excluded(e.ConnectorName)
}

// Build produces one active contract per eligible connector, sorted by
// connector name. The target table is the connector override, else the
// table the registered job fills, else the configured default.
func Build(registry []models.ConnectorRegistry, cfg Config, now time.Time) ([]models.SchemaContract, error) {
	var out []models.SchemaContract
	for _, e := range registry {
		if !Eligible(e, cfg) {
			continue
		}
		fields := cfg.Defaults
		dataset := e.ConnectorName
		if j, ok := connector.Lookup(e.ConnectorName); ok {
			if j.Meta.Table != "" {
				fields.TargetTable = j.Meta.Table
			}
			if j.Meta.Dataset != "" {
				dataset = j.Meta.Dataset
			}
		}
		fields = fields.merged(cfg.Connectors[e.ConnectorName])

		c, err := contract(e, dataset, fields, now)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ConnectorName < out[k].ConnectorName })
	return out, nil
}

func contract(e models.ConnectorRegistry, dataset string, f Fields, now time.Time) (models.SchemaContract, error) {
	if f.TargetTable == "" {
		return models.SchemaContract{}, errs.Errorf(errs.KindValidation, "contract %s: no target_table", e.ConnectorName)
	}
	spec := Tables[f.TargetTable]
	required := firstNonEmpty(f.RequiredColumns, spec.Required)
	if len(required) == 0 {
		return models.SchemaContract{}, errs.Errorf(errs.KindValidation,
			"contract %s: table %s has no built-in catalog and no required_columns", e.ConnectorName, f.TargetTable)
	}
	types := f.ColumnTypes
	if len(types) == 0 {
		types = spec.Types
	}
	constraints := f.Constraints
	if len(constraints) == 0 {
		constraints = spec.Constraints
	}

	version := f.SchemaVersion
	if version == "" {
		version = defaultSchemaVersion
	}
	effective := now.UTC().Truncate(24 * time.Hour)
	if f.EffectiveFrom != "" {
		t, err := time.Parse("2006-01-02", f.EffectiveFrom)
		if err != nil {
			return models.SchemaContract{}, errs.E(errs.KindValidation, "contract "+e.ConnectorName+": effective_from", err)
		}
		effective = t
	}

	normalized := make(map[string]string, len(types))
	for col, t := range types {
		normalized[col] = NormalizeType(t)
	}
	return models.SchemaContract{
		ConnectorName:   e.ConnectorName,
		TargetTable:     f.TargetTable,
		SchemaVersion:   version,
		Source:          e.Source,
		Dataset:         dataset,
		EffectiveFrom:   effective,
		Status:          models.ContractActive,
		RequiredColumns: append([]string(nil), required...),
		OptionalColumns: append([]string(nil), firstNonEmpty(f.OptionalColumns, spec.Optional)...),
		ColumnTypes:     models.NewJSONB(normalized),
		Constraints:     models.NewJSONB(constraints),
		SourceURI:       f.SourceURI,
		Notes:           f.Notes,
		UpdatedAt:       now.UTC(),
	}, nil
}

func firstNonEmpty(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}

// SyncResult counts what Sync changed.
type SyncResult struct {
	Upserted   int64 `json:"upserted"`
	Deprecated int64 `json:"deprecated"`
}

var contractUpdates = []string{
	"source", "dataset", "effective_from", "status", "required_columns", "optional_columns",
	"column_types", "constraints", "source_uri", "notes", "updated_at",
}

// Sync deprecates active rows of another schema_version for each
// (connector_name, target_table), then upserts the contract itself.
// Running it twice with the same input leaves the same state.
func Sync(tx *gorm.DB, contracts []models.SchemaContract) (SyncResult, error) {
	var res SyncResult
	for _, c := range contracts {
		r := tx.Model(&models.SchemaContract{}).
			Where("connector_name = ? AND target_table = ? AND status = ? AND schema_version <> ?",
				c.ConnectorName, c.TargetTable, models.ContractActive, c.SchemaVersion).
			Updates(map[string]any{"status": models.ContractDeprecated, "updated_at": c.UpdatedAt})
		if r.Error != nil {
			return res, db.Classify("deprecate schema_contracts "+c.ConnectorName, r.Error)
		}
		res.Deprecated += r.RowsAffected

		row := c
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "connector_name"}, {Name: "target_table"}, {Name: "schema_version"}},
			DoUpdates: clause.AssignmentColumns(contractUpdates),
		}).Create(&row).Error
		if err != nil {
			return res, db.Classify("upsert schema_contracts "+c.ConnectorName, err)
		}
		res.Upserted++
	}
	return res, nil
}

// LoadActive reads the active contracts ordered by connector.
func LoadActive(d *gorm.DB) ([]models.SchemaContract, error) {
	var rows []models.SchemaContract
	err := d.Where("status = ?", models.ContractActive).
		Order("connector_name, target_table").Find(&rows).Error
	if err != nil {
		return nil, db.Classify("load schema_contracts", err)
	}
	return rows, nil
}
