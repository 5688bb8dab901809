package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Schemas created by Migrate. Production DDL is owned elsewhere.
var Schemas = []string{"silver", "ops"}

func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}

// Migrate creates the schemas and tables this module writes to.
// Used by integration tests and local development databases.
func Migrate(d *gorm.DB) error {
	for _, s := range Schemas {
		if err := EnsureSchema(d, s); err != nil {
			return fmt.Errorf("ensure schema %s: %w", s, err)
		}
	}
	if err := d.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
