package connectors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/config"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

func TestAdminBootstrapAgainstWarehouse(t *testing.T) {
	_ = godotenv.Load("../../.env.local")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
	ctx := context.Background()
	d, err := db.Open(ctx, dsn, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(d))
	require.NoError(t, d.Exec(`DELETE FROM silver.dim_territory WHERE municipality_ibge_code = ?`, "3121605").Error)

	srv := ibgeServer(t)
	root := t.TempDir()
	s := config.Settings{
		MunicipalityIBGECode: "3121605",
		DataRoot:             filepath.Join(root, "data"),
		IBGEAPIBaseURL:       srv.URL,
	}
	rt := connector.NewRuntime(connector.Deps{
		Store: warehouse.NewGorm(d, logging.Discard()),
		Env:   &connector.Env{Settings: s, HTTP: testClient(), DB: d},
		Log:   logging.Discard(),
	})

	for i := 0; i < 2; i++ {
		res := rt.Execute(ctx, AdminBootstrap.Meta, connector.RunOptions{ReferencePeriod: "2025"}, AdminBootstrap.Body)
		require.Equal(t, models.RunSuccess, res.Status, res.Errors)
	}

	var rows []models.DimTerritory
	require.NoError(t, d.Where("municipality_ibge_code = ?", "3121605").Order("level DESC").Find(&rows).Error)
	require.Len(t, rows, 2, "re-running does not duplicate rows")
	muni, district := rows[0], rows[1]
	assert.Equal(t, models.LevelMunicipality, muni.Level)
	assert.Equal(t, models.LevelDistrict, district.Level)
	require.NotNil(t, district.ParentTerritoryID)
	assert.Equal(t, muni.TerritoryID, *district.ParentTerritoryID)

	m, err := territory.ResolveMunicipality(ctx, d, "3121605")
	require.NoError(t, err)
	assert.Equal(t, muni.TerritoryID, m.TerritoryID)

	var runs int64
	require.NoError(t, d.Model(&models.PipelineRun{}).Where("job_name = ?", AdminBootstrap.Meta.Name).Count(&runs).Error)
	assert.GreaterOrEqual(t, runs, int64(2))
}
