// Package seeds loads the connector registry file into the warehouse.
package seeds

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Options tune a seeding pass.
type Options struct {
	RegistryPath string
	// Migrate creates the schemas and tables first; for development databases.
	Migrate bool
	// AdvisoryLock serializes concurrent seeders when non-zero.
	AdvisoryLock int64
	DryRun       bool
}

// Plan is what a seeding pass wrote or would write.
type Plan struct {
	Entries  []models.ConnectorRegistry
	Inserted int
	Updated  int
}

// SeedAll upserts the registry file into ops.connector_registry in one
// transaction. A dry run only reads.
func SeedAll(ctx context.Context, d *gorm.DB, opts Options, log *slog.Logger) (Plan, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := ops.LoadRegistryFile(opts.RegistryPath)
	if err != nil {
		return Plan{}, err
	}
	if opts.Migrate && !opts.DryRun {
		if err := db.Migrate(d); err != nil {
			return Plan{}, err
		}
	}

	var plan Plan
	err = db.WithSession(ctx, d, func(tx *gorm.DB) error {
		if opts.AdvisoryLock != 0 {
			if err := tx.Exec(`SELECT pg_advisory_xact_lock(?)`, opts.AdvisoryLock).Error; err != nil {
				return db.Classify("advisory lock", err)
			}
		}
		existing, err := ops.LoadConnectorRegistry(tx)
		if err != nil {
			return err
		}
		plan = Diff(entries, existing)
		if opts.DryRun {
			return nil
		}
		return ops.UpsertConnectorRegistry(tx, entries)
	})
	if err != nil {
		return Plan{}, err
	}
	log.Info("connector registry seeded",
		"path", opts.RegistryPath,
		"entries", len(plan.Entries),
		"inserted", plan.Inserted,
		"updated", plan.Updated,
		"dry_run", opts.DryRun,
	)
	return plan, nil
}

// Diff counts the file entries that are new or differ from the stored rows.
func Diff(entries, existing []models.ConnectorRegistry) Plan {
	stored := make(map[string]models.ConnectorRegistry, len(existing))
	for _, e := range existing {
		stored[e.ConnectorName] = e
	}
	plan := Plan{Entries: entries}
	for _, e := range entries {
		old, ok := stored[e.ConnectorName]
		switch {
		case !ok:
			plan.Inserted++
		case old.Source != e.Source || old.Wave != e.Wave || old.Status != e.Status || old.Notes != e.Notes:
			plan.Updated++
		}
	}
	return plan
}
