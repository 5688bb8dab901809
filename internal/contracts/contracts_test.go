package contracts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/vthamada/territorial-intelligence-platform-sub001/internal/connectors"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

var buildTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func shipped(t *testing.T) ([]models.ConnectorRegistry, Config) {
	t.Helper()
	entries, err := ops.LoadRegistryFile("../../configs/connectors.yml")
	require.NoError(t, err)
	cfg, err := LoadConfig("../../configs/schema_contracts.yml")
	require.NoError(t, err)
	return entries, cfg
}

func TestBuildFromShippedConfig(t *testing.T) {
	entries, cfg := shipped(t)
	built, err := Build(entries, cfg, buildTime)
	require.NoError(t, err)

	byName := map[string]models.SchemaContract{}
	for _, c := range built {
		byName[c.ConnectorName] = c
	}
	assert.NotContains(t, byName, "quality_suite")
	assert.NotContains(t, byName, "schema_drift_check")
	assert.NotContains(t, byName, "mds_censo_suas", "planned connectors get no contract")
	assert.Contains(t, byName, "inpe_queimadas", "partial connectors get a contract")
	assert.Len(t, built, 9)

	inep := byName["inep_censo_escolar"]
	assert.Equal(t, "silver.fact_indicator", inep.TargetTable)
	assert.Equal(t, "v1", inep.SchemaVersion)
	assert.Equal(t, models.ContractActive, inep.Status)
	assert.Equal(t, "censo_escolar_matriculas", inep.Dataset)
	assert.Equal(t, "2025-01-01", inep.EffectiveFrom.Format("2006-01-02"))
	assert.Contains(t, []string(inep.RequiredColumns), "value")
	assert.Equal(t, "numeric", inep.ColumnTypes.Map()["value"])

	tse := byName["tse_electorate"]
	assert.Equal(t, "silver.fact_electorate", tse.TargetTable)
	assert.Equal(t, "https://dadosabertos.tse.jus.br/dataset/eleitorado", tse.SourceURI)
	assert.Equal(t, "silver.dim_territory", byName["ibge_admin_bootstrap"].TargetTable)

	for i := 1; i < len(built); i++ {
		assert.Less(t, built[i-1].ConnectorName, built[i].ConnectorName)
	}
}

func TestBuildOverridesAndSkips(t *testing.T) {
	entries := []models.ConnectorRegistry{
		{ConnectorName: "custom_feed", Source: "X", Status: models.ConnectorImplemented},
		{ConnectorName: "skipped_feed", Source: "X", Status: models.ConnectorImplemented},
	}
	cfg := Config{
		Defaults:       Fields{TargetTable: "silver.fact_indicator"},
		SkipConnectors: []string{"skipped_feed"},
		Connectors: map[string]Fields{
			"custom_feed": {SchemaVersion: "v2", RequiredColumns: []string{"territory_id", "value"}},
		},
	}
	built, err := Build(entries, cfg, buildTime)
	require.NoError(t, err)
	require.Len(t, built, 1)
	c := built[0]
	assert.Equal(t, "v2", c.SchemaVersion)
	assert.Equal(t, []string{"territory_id", "value"}, []string(c.RequiredColumns))
	assert.Equal(t, "custom_feed", c.Dataset)
	assert.Equal(t, buildTime.Truncate(24*time.Hour), c.EffectiveFrom)
}

func TestBuildRejectsUnknownTableWithoutColumns(t *testing.T) {
	entries := []models.ConnectorRegistry{{ConnectorName: "x", Source: "X", Status: models.ConnectorPartial}}
	_, err := Build(entries, Config{Defaults: Fields{TargetTable: "gold.unknown"}}, buildTime)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = Build(entries, Config{Defaults: Fields{TargetTable: "silver.fact_indicator", EffectiveFrom: "03/10/2025"}}, buildTime)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestNormalizeType(t *testing.T) {
	cases := map[string]string{
		"character varying(255)":   "text",
		"TEXT":                     "text",
		"bigint":                   "integer",
		"numeric(12,2)":            "numeric",
		"double precision":         "numeric",
		"timestamp with time zone": "timestamp",
		"jsonb":                    "json",
		"uuid":                     "uuid",
		"text[]":                   "array",
		"_text":                    "array",
		"tsvector":                 "tsvector",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeType(in), in)
	}
	assert.Equal(t, "geometry", LiveType(Column{DataType: "USER-DEFINED", UDTName: "geometry"}))
	assert.Equal(t, "array", LiveType(Column{DataType: "ARRAY", UDTName: "_text"}))
}

type fakeCatalog map[string][]Column

func (f fakeCatalog) Columns(_ context.Context, schema, table string) ([]Column, error) {
	if cols, ok := f[schema+"."+table]; ok {
		return cols, nil
	}
	if table == "broken" {
		return nil, errors.New("catalog unavailable")
	}
	return nil, nil
}

func indicatorContract(name string) models.SchemaContract {
	return models.SchemaContract{
		ConnectorName:   name,
		TargetTable:     "silver.fact_indicator",
		SchemaVersion:   "v1",
		Status:          models.ContractActive,
		RequiredColumns: []string{"territory_id", "value"},
		ColumnTypes:     models.NewJSONB(map[string]string{"territory_id": "uuid", "value": "numeric"}),
	}
}

func TestDriftTypeMismatch(t *testing.T) {
	cat := fakeCatalog{"silver.fact_indicator": {
		{Name: "territory_id", DataType: "uuid", UDTName: "uuid"},
		{Name: "value", DataType: "text", UDTName: "text"},
	}}
	rep, err := CheckDrift(context.Background(), cat, []models.SchemaContract{indicatorContract("inep_censo_escolar")}, 0)
	require.NoError(t, err)

	checks := map[string]ops.Check{}
	for _, c := range rep.Checks {
		checks[c.Name] = c
	}
	mismatch := checks["schema_drift_inep_censo_escolar_type_mismatch_columns"]
	assert.Equal(t, models.CheckFail, mismatch.Status)
	assert.Equal(t, 1, mismatch.ObservedValue)
	assert.Equal(t, models.CheckPass, checks["schema_drift_inep_censo_escolar_missing_required_columns"].Status)

	agg := checks["schema_drift_connectors_with_issues"]
	assert.Equal(t, models.CheckFail, agg.Status)
	assert.GreaterOrEqual(t, agg.ObservedValue, 1)

	require.Len(t, rep.Connectors, 1)
	assert.Equal(t, []Mismatch{{Column: "value", Expected: "numeric", Actual: "text"}}, rep.Connectors[0].TypeMismatches)
}

func TestDriftMissingTableAndColumns(t *testing.T) {
	cat := fakeCatalog{"silver.fact_indicator": {{Name: "territory_id", DataType: "uuid"}}}
	electorate := indicatorContract("tse_electorate")
	electorate.TargetTable = "silver.fact_electorate"
	deprecated := indicatorContract("old")
	deprecated.Status = models.ContractDeprecated

	rep, err := CheckDrift(context.Background(), cat, []models.SchemaContract{indicatorContract("inep_censo_escolar"), electorate, deprecated}, 5)
	require.NoError(t, err)
	require.Len(t, rep.Connectors, 2)

	assert.Equal(t, []string{"value"}, rep.Connectors[0].MissingColumns)
	assert.False(t, rep.Connectors[1].TableExists)

	last := rep.Checks[len(rep.Checks)-1]
	assert.Equal(t, "schema_drift_connectors_with_issues", last.Name)
	assert.Equal(t, 2, last.ObservedValue)
	assert.Equal(t, models.CheckPass, last.Status, "two drifted connectors are within the limit of five")
	assert.Equal(t, 2, ops.CountStatus(rep.Checks, models.CheckFail))
}

func TestDriftCleanAndCatalogErrors(t *testing.T) {
	cat := fakeCatalog{"silver.fact_indicator": {
		{Name: "territory_id", DataType: "uuid"},
		{Name: "value", DataType: "numeric"},
		{Name: "extra", DataType: "text"},
	}}
	out, err := DriftOutcome(context.Background(), cat, []models.SchemaContract{indicatorContract("inep_censo_escolar")}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, out.Status)
	assert.Zero(t, ops.CountStatus(out.Checks, models.CheckFail))
	assert.True(t, out.OwnChecks)

	broken := indicatorContract("x")
	broken.TargetTable = "silver.broken"
	_, err = CheckDrift(context.Background(), cat, []models.SchemaContract{broken}, 0)
	assert.Error(t, err)
}
