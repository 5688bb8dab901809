package ops

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

type registryFile struct {
	Connectors []models.ConnectorRegistry `yaml:"connectors"`
}

var validConnectorStatus = map[models.ConnectorStatus]bool{
	models.ConnectorImplemented: true,
	models.ConnectorPartial:     true,
	models.ConnectorPlanned:     true,
	models.ConnectorBlocked:     true,
}

// LoadRegistryFile reads configs/connectors.yml.
func LoadRegistryFile(path string) ([]models.ConnectorRegistry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.KindConfiguration, "read connector registry", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errs.E(errs.KindConfiguration, "parse connector registry", err)
	}
	seen := map[string]bool{}
	for _, c := range f.Connectors {
		if c.ConnectorName == "" {
			return nil, errs.Errorf(errs.KindValidation, "connector registry entry without connector_name")
		}
		if seen[c.ConnectorName] {
			return nil, errs.Errorf(errs.KindValidation, "duplicate connector %q", c.ConnectorName)
		}
		seen[c.ConnectorName] = true
		if !validConnectorStatus[c.Status] {
			return nil, errs.Errorf(errs.KindValidation, "connector %s: invalid status %q", c.ConnectorName, c.Status)
		}
	}
	return f.Connectors, nil
}

// UpsertConnectorRegistry writes entries keyed by connector_name.
func UpsertConnectorRegistry(tx *gorm.DB, entries []models.ConnectorRegistry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.ConnectorRegistry, len(entries))
	for i, e := range entries {
		e.UpdatedAt = now
		rows[i] = e
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connector_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "wave", "status", "notes", "updated_at"}),
	}).Create(&rows).Error
	return db.Classify("upsert connector_registry", err)
}

// LoadConnectorRegistry reads every registry row ordered by name.
func LoadConnectorRegistry(d *gorm.DB) ([]models.ConnectorRegistry, error) {
	var rows []models.ConnectorRegistry
	if err := d.Order("connector_name").Find(&rows).Error; err != nil {
		return nil, db.Classify("load connector_registry", err)
	}
	return rows, nil
}

// Implemented returns the names of connectors declared implemented.
func Implemented(entries []models.ConnectorRegistry) []string {
	var out []string
	for _, e := range entries {
		if e.Status == models.ConnectorImplemented {
			out = append(out, e.ConnectorName)
		}
	}
	sort.Strings(out)
	return out
}

// Describe renders an entry for CLI listings.
func Describe(e models.ConnectorRegistry) string {
	return fmt.Sprintf("%-28s %-10s %-8s %-12s %s", e.ConnectorName, e.Source, e.Wave, e.Status, e.Notes)
}
