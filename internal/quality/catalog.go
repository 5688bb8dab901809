package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Params scope the probe catalog.
type Params struct {
	MunicipalityCode string
	// ReferencePeriod is the period implemented jobs must have succeeded in.
	ReferencePeriod string
	// IndicatorSources are the sources of implemented indicator connectors.
	IndicatorSources []string
}

const (
	tableTerritory        = "dim_territory"
	tableIndicator        = "fact_indicator"
	tableElectorate       = "fact_electorate"
	tableElectionResult   = "fact_election_result"
	tableSocialProtection = "fact_social_protection"
	tableSocialAssistance = "fact_social_assistance_network"
	tableMapLayers        = "map_layers"
	tableUrban            = "urban"
	tableRuns             = "pipeline_runs"
)

// Catalog returns the fixed set of warehouse invariants for p.
func Catalog(p Params) []Probe {
	var probes []Probe
	probes = append(probes, territoryProbes(p)...)
	probes = append(probes, temporalProbes("electorate", tableElectorate, "silver.fact_electorate", "reference_year")...)
	probes = append(probes, temporalProbes("election_result", tableElectionResult, "silver.fact_election_result", "election_year")...)
	probes = append(probes, indicatorProbes(p)...)
	probes = append(probes, socialProbes()...)
	probes = append(probes, spatialProbes()...)
	probes = append(probes, Probe{
		Name:  "implemented_jobs_without_success",
		Table: tableRuns,
		Query: `SELECT COUNT(*) FROM ops.connector_registry r
WHERE r.status = 'implemented' AND r.source <> 'INTERNAL'
AND NOT EXISTS (
  SELECT 1 FROM ops.pipeline_runs p
  WHERE p.job_name = r.connector_name AND p.status = 'success' AND p.reference_period = ?
)`,
		Args:         []any{p.ReferencePeriod},
		Compare:      AtMost,
		ThresholdKey: "max_jobs_without_success",
		Breach:       models.CheckWarn,
	})
	return probes
}

func territoryProbes(p Params) []Probe {
	return []Probe{
		{
			Name:         "territory_municipality_rows",
			Table:        tableTerritory,
			Query:        `SELECT COUNT(*) FROM silver.dim_territory WHERE level = 'municipality' AND municipality_ibge_code = ?`,
			Args:         []any{p.MunicipalityCode},
			Compare:      AtLeast,
			ThresholdKey: "min_municipalities",
			Fallback:     1,
			Breach:       models.CheckFail,
		},
		{
			Name:         "territory_district_rows",
			Table:        tableTerritory,
			Query:        `SELECT COUNT(*) FROM silver.dim_territory WHERE level = 'district' AND municipality_ibge_code = ?`,
			Args:         []any{p.MunicipalityCode},
			Compare:      AtLeast,
			ThresholdKey: "min_districts",
			Fallback:     1,
			Breach:       models.CheckWarn,
		},
		{
			// NULLs never collide in the unique index, so group explicitly.
			Name:  "territory_duplicate_keys",
			Table: tableTerritory,
			Query: `SELECT COUNT(*) FROM (
  SELECT 1 FROM silver.dim_territory
  GROUP BY level, ibge_geocode, tse_zone, tse_section, municipality_ibge_code
  HAVING COUNT(*) > 1
) d`,
			Compare:      AtMost,
			ThresholdKey: "max_duplicate_keys",
			Breach:       models.CheckFail,
		},
		{
			Name:  "territory_orphan_parents",
			Table: tableTerritory,
			Query: `SELECT COUNT(*) FROM silver.dim_territory c
LEFT JOIN silver.dim_territory p ON p.territory_id = c.parent_territory_id
WHERE c.level <> 'municipality' AND p.territory_id IS NULL`,
			Compare:      AtMost,
			ThresholdKey: "max_orphan_rows",
			Breach:       models.CheckFail,
		},
		{
			Name:  "electoral_section_zone_integrity",
			Table: tableTerritory,
			Query: `SELECT COUNT(*) FROM silver.dim_territory s
LEFT JOIN silver.dim_territory z ON z.territory_id = s.parent_territory_id AND z.level = 'electoral_zone'
WHERE s.level = 'electoral_section' AND z.territory_id IS NULL`,
			Compare:      AtMost,
			ThresholdKey: "max_orphan_rows",
			Breach:       models.CheckFail,
		},
	}
}

func temporalProbes(name, table, relation, yearColumn string) []Probe {
	return []Probe{
		{
			Name:         name + "_distinct_years",
			Table:        table,
			Query:        fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM %s`, yearColumn, relation),
			Compare:      AtLeast,
			ThresholdKey: "min_distinct_years",
			Fallback:     1,
			Breach:       models.CheckWarn,
		},
		{
			Name:  name + "_max_year_gap",
			Table: table,
			Query: fmt.Sprintf(`SELECT MAX(gap) FROM (
  SELECT y - LAG(y) OVER (ORDER BY y) AS gap
  FROM (SELECT DISTINCT %s AS y FROM %s) years
) gaps`, yearColumn, relation),
			Compare:      AtMost,
			ThresholdKey: "max_year_gap",
			Fallback:     4,
			Breach:       models.CheckWarn,
		},
	}
}

var indicatorRequired = []string{"indicator_code", "reference_period", "value", "territory_id"}

func indicatorProbes(p Params) []Probe {
	probes := []Probe{{
		Name:         "indicator_rows",
		Table:        tableIndicator,
		Query:        `SELECT COUNT(*) FROM silver.fact_indicator`,
		Compare:      AtLeast,
		ThresholdKey: "min_rows",
		Fallback:     1,
		Breach:       models.CheckWarn,
	}}
	for _, col := range indicatorRequired {
		probes = append(probes, Probe{
			Name:  "indicator_null_ratio_" + col,
			Table: tableIndicator,
			Query: fmt.Sprintf(`SELECT COALESCE(AVG(CASE WHEN NULLIF(%s::text, '') IS NULL THEN 1.0 ELSE 0.0 END), 0)::float8
FROM silver.fact_indicator`, col),
			Compare:      AtMost,
			ThresholdKey: "max_null_ratio",
			Breach:       models.CheckFail,
		})
	}

	sources := append([]string(nil), p.IndicatorSources...)
	sort.Strings(sources)
	for _, src := range sources {
		probes = append(probes, Probe{
			Name:         "source_periods_" + strings.ToLower(src),
			Table:        tableIndicator,
			Query:        `SELECT COUNT(DISTINCT reference_period) FROM silver.fact_indicator WHERE source = ?`,
			Args:         []any{src},
			Compare:      AtLeast,
			ThresholdKey: "min_distinct_periods",
			Fallback:     1,
			Breach:       models.CheckFail,
		})
	}
	return probes
}

func socialProbes() []Probe {
	return []Probe{
		{
			Name:         "social_protection_rows",
			Table:        tableSocialProtection,
			Query:        `SELECT COUNT(*) FROM silver.fact_social_protection`,
			Compare:      AtLeast,
			ThresholdKey: "min_rows",
			Fallback:     1,
			Breach:       models.CheckWarn,
		},
		{
			Name:  "social_protection_negative_rows",
			Table: tableSocialProtection,
			Query: `SELECT COUNT(*) FROM silver.fact_social_protection
WHERE households_total < 0 OR people_total < 0 OR poverty_households < 0
   OR extreme_poverty_households < 0 OR avg_income_per_capita < 0`,
			Compare:      AtMost,
			ThresholdKey: "max_negative_rows",
			Breach:       models.CheckFail,
		},
		{
			Name:         "social_assistance_rows",
			Table:        tableSocialAssistance,
			Query:        `SELECT COUNT(*) FROM silver.fact_social_assistance_network`,
			Compare:      AtLeast,
			ThresholdKey: "min_rows",
			Breach:       models.CheckWarn,
		},
		{
			Name:  "social_assistance_negative_rows",
			Table: tableSocialAssistance,
			Query: `SELECT COUNT(*) FROM silver.fact_social_assistance_network
WHERE cras_units < 0 OR creas_units < 0 OR centro_pop_units < 0 OR capacity_total < 0`,
			Compare:      AtMost,
			ThresholdKey: "max_negative_rows",
			Breach:       models.CheckFail,
		},
	}
}

// spatialProbes read the map schema the geospatial pipeline maintains.
func spatialProbes() []Probe {
	return []Probe{
		{
			Name:         "map_layer_geometries",
			Table:        tableMapLayers,
			Query:        `SELECT COUNT(*) FROM map.territory_layers WHERE geom IS NOT NULL`,
			Compare:      AtLeast,
			ThresholdKey: "min_geometries",
			Fallback:     1,
			Breach:       models.CheckWarn,
			Optional:     true,
		},
		{
			Name:         "urban_road_segments",
			Table:        tableUrban,
			Query:        `SELECT COUNT(*) FROM map.urban_road_segment`,
			Compare:      AtLeast,
			ThresholdKey: "min_road_segments",
			Breach:       models.CheckWarn,
			Optional:     true,
		},
		{
			Name:         "urban_pois",
			Table:        tableUrban,
			Query:        `SELECT COUNT(*) FROM map.urban_poi`,
			Compare:      AtLeast,
			ThresholdKey: "min_pois",
			Breach:       models.CheckWarn,
			Optional:     true,
		},
	}
}
