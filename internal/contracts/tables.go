package contracts

import "github.com/vthamada/territorial-intelligence-platform-sub001/models"

// TableSpec is the built-in shape of a warehouse table.
type TableSpec struct {
	Required    []string
	Optional    []string
	Types       map[string]string
	Constraints map[string]any
}

func key(cols []string) map[string]any {
	return map[string]any{"unique_key": cols}
}

// Tables holds the built-in catalogs keyed by qualified table name.
var Tables = map[string]TableSpec{
	"silver.fact_indicator": {
		Required: []string{"territory_id", "source", "dataset", "indicator_code", "indicator_name", "value", "reference_period"},
		Optional: []string{"unit", "category", "updated_at"},
		Types: map[string]string{
			"territory_id": "uuid", "source": "text", "dataset": "text", "indicator_code": "text",
			"indicator_name": "text", "unit": "text", "category": "text", "value": "numeric",
			"reference_period": "text", "updated_at": "timestamp",
		},
		Constraints: key(models.IndicatorKey),
	},
	"silver.fact_electorate": {
		Required: []string{"territory_id", "reference_year", "sex", "age_range", "education", "voters"},
		Optional: []string{"updated_at"},
		Types: map[string]string{
			"territory_id": "uuid", "reference_year": "integer", "sex": "text", "age_range": "text",
			"education": "text", "voters": "integer", "updated_at": "timestamp",
		},
		Constraints: key(models.ElectorateKey),
	},
	"silver.fact_election_result": {
		Required: []string{"territory_id", "election_year", "election_round", "office", "metric", "value"},
		Optional: []string{"updated_at"},
		Types: map[string]string{
			"territory_id": "uuid", "election_year": "integer", "election_round": "integer", "office": "text",
			"metric": "text", "value": "numeric", "updated_at": "timestamp",
		},
		Constraints: key(models.ElectionResultKey),
	},
	"silver.dim_territory": {
		Required: []string{"territory_id", "level", "canonical_key", "name", "normalized_name", "uf", "municipality_ibge_code"},
		Optional: []string{"parent_territory_id", "source_system", "source_entity_id", "ibge_geocode", "tse_zone",
			"tse_section", "valid_from", "valid_to", "metadata", "updated_at"},
		Types: map[string]string{
			"territory_id": "uuid", "level": "text", "parent_territory_id": "uuid", "canonical_key": "text",
			"name": "text", "normalized_name": "text", "uf": "text", "municipality_ibge_code": "text",
			"ibge_geocode": "text", "tse_zone": "text", "tse_section": "text", "valid_from": "date",
			"valid_to": "date", "metadata": "json", "updated_at": "timestamp",
		},
		Constraints: key([]string{"level", "ibge_geocode", "tse_zone", "tse_section", "municipality_ibge_code"}),
	},
	"silver.fact_social_protection": {
		Required: []string{"territory_id", "source", "dataset", "reference_period"},
		Optional: []string{"households_total", "people_total", "avg_income_per_capita", "poverty_households",
			"extreme_poverty_households", "updated_at"},
		Types: map[string]string{
			"territory_id": "uuid", "source": "text", "dataset": "text", "reference_period": "text",
			"households_total": "integer", "people_total": "integer", "avg_income_per_capita": "numeric",
			"poverty_households": "integer", "extreme_poverty_households": "integer", "updated_at": "timestamp",
		},
		Constraints: key(models.SocialFactKey),
	},
	"silver.fact_social_assistance_network": {
		Required: []string{"territory_id", "source", "dataset", "reference_period"},
		Optional: []string{"cras_units", "creas_units", "centro_pop_units", "capacity_total", "updated_at"},
		Types: map[string]string{
			"territory_id": "uuid", "source": "text", "dataset": "text", "reference_period": "text",
			"cras_units": "integer", "creas_units": "integer", "centro_pop_units": "integer",
			"capacity_total": "integer", "updated_at": "timestamp",
		},
		Constraints: key(models.SocialFactKey),
	},
}
