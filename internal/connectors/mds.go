package connectors

import (
	"github.com/shopspring/decimal"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/indicators"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/tabular"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// MDSCadUnico reads the CadUnico municipal summary. The public extraction
// tool is rate limited, so operators usually drop the file by hand.
var MDSCadUnico = connector.Definition{
	JobMeta:           connector.JobMeta{Name: "mds_cadunico", Source: "MDS", Dataset: "cadunico_familias", Wave: "MVP-3", Table: "silver.fact_social_protection"},
	CodeColumns:       []string{"codigo_ibge", "ibge", "cod_ibge", "codigo"},
	NameColumns:       []string{"municipio", "nome_municipio"},
	UFColumns:         []string{"uf", "sigla_uf"},
	PreferManualFirst: true,
	Build:             buildSocialProtection,
	Specs: []indicators.Spec{
		{Code: "mds_cadunico_familias", Name: "Familias inscritas no CadUnico", Unit: "familias", Category: "assistencia_social",
			Columns: []string{"qtd_familias_cadastradas", "cadunico_tot_fam", "familias_cadastradas"}, Aggregator: indicators.Sum},
		{Code: "mds_cadunico_pessoas", Name: "Pessoas inscritas no CadUnico", Unit: "pessoas", Category: "assistencia_social",
			Columns: []string{"qtd_pessoas_cadastradas", "cadunico_tot_pes", "pessoas_cadastradas"}, Aggregator: indicators.Sum},
	},
}

// MDSCensoSUAS is scaffolded until the SUAS census layout is mapped.
var MDSCensoSUAS = connector.Definition{
	JobMeta: connector.JobMeta{Name: "mds_censo_suas", Source: "MDS", Dataset: "censo_suas_rede", Wave: "MVP-3", Table: "silver.fact_social_assistance_network", NotImplemented: true},
}

func buildSocialProtection(in connector.BuildInput) (warehouse.Batch, []string) {
	f := in.Frame
	row := models.FactSocialProtection{
		TerritoryID:              in.Municipality.TerritoryID,
		Source:                   in.Source,
		Dataset:                  in.Dataset,
		ReferencePeriod:          in.Period,
		HouseholdsTotal:          sumInt(f, "qtd_familias_cadastradas", "cadunico_tot_fam", "familias_cadastradas"),
		PeopleTotal:              sumInt(f, "qtd_pessoas_cadastradas", "cadunico_tot_pes", "pessoas_cadastradas"),
		PovertyHouseholds:        sumInt(f, "familias_pobreza", "qtd_familias_pobreza", "cadunico_fam_pobreza"),
		ExtremePovertyHouseholds: sumInt(f, "familias_extrema_pobreza", "qtd_familias_extrema_pobreza", "cadunico_fam_ext_pobreza"),
		AvgIncomePerCapita:       mean(f, "renda_per_capita_media", "renda_media_per_capita"),
		UpdatedAt:                in.Now,
	}
	if row.HouseholdsTotal == nil && row.PeopleTotal == nil && row.PovertyHouseholds == nil &&
		row.ExtremePovertyHouseholds == nil && !row.AvgIncomePerCapita.Valid {
		return warehouse.Batch{}, []string{"social protection: no metric columns found"}
	}
	return warehouse.Batch{SocialProtection: []models.FactSocialProtection{row}}, nil
}

// sumInt sums the first present column; nil when absent or all null.
func sumInt(f *tabular.Frame, candidates ...string) *int64 {
	col := f.FirstPresent(candidates...)
	if col == "" {
		return nil
	}
	var (
		total int64
		seen  bool
	)
	for _, r := range f.Rows {
		if v, ok := indicators.ParseNumber(r[col]); ok {
			total += v.IntPart()
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}

func mean(f *tabular.Frame, candidates ...string) decimal.NullDecimal {
	col := f.FirstPresent(candidates...)
	if col == "" {
		return decimal.NullDecimal{}
	}
	var (
		acc decimal.Decimal
		n   int64
	)
	for _, r := range f.Rows {
		if v, ok := indicators.ParseNumber(r[col]); ok {
			acc = acc.Add(v)
			n++
		}
	}
	if n == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(acc.Div(decimal.NewFromInt(n)).Round(2))
}
