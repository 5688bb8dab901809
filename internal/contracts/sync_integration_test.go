package contracts

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// testDB is set when DATABASE_URL points at a scratch warehouse.
var testDB *gorm.DB

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env.local")

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		d, err := db.Open(context.Background(), dsn, logging.Discard())
		if err == nil && db.Migrate(d) == nil {
			testDB = d
		}
	}
	code := m.Run()
	db.Close()
	os.Exit(code)
}

func requireDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
	return testDB
}

// snapshot reads every contract of the test connector ignoring timestamps.
func snapshot(t *testing.T, tx *gorm.DB, name string) []models.SchemaContract {
	t.Helper()
	var rows []models.SchemaContract
	require.NoError(t, tx.Where("connector_name = ?", name).Order("schema_version").Find(&rows).Error)
	for i := range rows {
		rows[i].UpdatedAt = rows[i].UpdatedAt.UTC()
		rows[i].EffectiveFrom = rows[i].EffectiveFrom.UTC()
	}
	return rows
}

func TestSyncIsIdempotentAndDeprecates(t *testing.T) {
	d := requireDB(t)
	const name = "it_contract_feed"
	t.Cleanup(func() { d.Where("connector_name = ?", name).Delete(&models.SchemaContract{}) })

	entries := []models.ConnectorRegistry{{ConnectorName: name, Source: "IT", Status: models.ConnectorImplemented}}
	cfg := Config{Defaults: Fields{TargetTable: "silver.fact_indicator", SchemaVersion: "v1"}}
	v1, err := Build(entries, cfg, buildTime)
	require.NoError(t, err)

	var once, twice []models.SchemaContract
	require.NoError(t, db.WithSession(context.Background(), d, func(tx *gorm.DB) error {
		_, err := Sync(tx, v1)
		return err
	}))
	once = snapshot(t, d, name)
	require.NoError(t, db.WithSession(context.Background(), d, func(tx *gorm.DB) error {
		res, err := Sync(tx, v1)
		assert.Equal(t, int64(0), res.Deprecated)
		return err
	}))
	twice = snapshot(t, d, name)
	assert.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].Status, twice[i].Status)
		assert.Equal(t, once[i].SchemaVersion, twice[i].SchemaVersion)
		assert.Equal(t, []string(once[i].RequiredColumns), []string(twice[i].RequiredColumns))
	}

	cfg.Defaults.SchemaVersion = "v2"
	v2, err := Build(entries, cfg, buildTime)
	require.NoError(t, err)
	require.NoError(t, db.WithSession(context.Background(), d, func(tx *gorm.DB) error {
		res, err := Sync(tx, v2)
		assert.Equal(t, int64(1), res.Deprecated)
		return err
	}))
	rows := snapshot(t, d, name)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ContractDeprecated, rows[0].Status)
	assert.Equal(t, models.ContractActive, rows[1].Status)

	active, err := LoadActive(d.Where("connector_name = ?", name))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "v2", active[0].SchemaVersion)

	rep, err := CheckDrift(context.Background(), PostgresCatalog{DB: d}, active, 0)
	require.NoError(t, err)
	require.Len(t, rep.Connectors, 1)
	assert.False(t, rep.Connectors[0].HasIssues(), "%+v", rep.Connectors[0])
}
