package connectors

import (
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/indicators"
)

// Indicator connectors only configure the generic tabular runtime.

var INEPCensoEscolar = connector.Definition{
	JobMeta:     connector.JobMeta{Name: "inep_censo_escolar", Source: "INEP", Dataset: "censo_escolar_matriculas", Wave: "MVP-1", Table: "silver.fact_indicator"},
	CodeColumns: []string{"co_municipio", "codigo_municipio", "cod_municipio"},
	NameColumns: []string{"no_municipio", "nome_municipio", "municipio"},
	UFColumns:   []string{"sg_uf", "uf"},
	YearColumns: []string{"nu_ano_censo", "ano"},
	Specs: []indicators.Spec{
		{Code: "inep_matriculas_total", Name: "Matriculas na educacao basica", Unit: "matriculas", Category: "educacao",
			Columns: []string{"qt_mat_bas", "matriculas", "total_matriculas"}, Aggregator: indicators.Sum},
		{Code: "inep_matriculas_infantil", Name: "Matriculas na educacao infantil", Unit: "matriculas", Category: "educacao",
			Columns: []string{"qt_mat_inf"}, Aggregator: indicators.Sum},
		{Code: "inep_matriculas_fundamental", Name: "Matriculas no ensino fundamental", Unit: "matriculas", Category: "educacao",
			Columns: []string{"qt_mat_fund"}, Aggregator: indicators.Sum},
		{Code: "inep_matriculas_medio", Name: "Matriculas no ensino medio", Unit: "matriculas", Category: "educacao",
			Columns: []string{"qt_mat_med"}, Aggregator: indicators.Sum},
		{Code: "inep_escolas_total", Name: "Escolas", Unit: "escolas", Category: "educacao",
			Aggregator: indicators.Count},
	},
	MinPayloadBytes: 32,
}

// DATASUSCNES matches on the 6-digit municipality code CNES publishes.
var DATASUSCNES = connector.Definition{
	JobMeta:     connector.JobMeta{Name: "datasus_cnes", Source: "DATASUS", Dataset: "cnes_estabelecimentos", Wave: "MVP-1", Table: "silver.fact_indicator"},
	CodeColumns: []string{"codufmun", "co_municipio_gestor", "co_ibge", "cod_municipio"},
	NameColumns: []string{"municipio", "no_municipio"},
	UFColumns:   []string{"uf", "sg_uf"},
	YearColumns: []string{"competen", "competencia"},
	Specs: []indicators.Spec{
		{Code: "datasus_estabelecimentos_total", Name: "Estabelecimentos de saude", Unit: "estabelecimentos", Category: "saude",
			Aggregator: indicators.Count},
		{Code: "datasus_leitos_total", Name: "Leitos existentes", Unit: "leitos", Category: "saude",
			Columns: []string{"qt_leitos", "leitos_existentes", "qt_exist"}, Aggregator: indicators.Sum},
		{Code: "datasus_ubs_total", Name: "Unidades basicas de saude", Unit: "estabelecimentos", Category: "saude",
			Aggregator: indicators.Count,
			RowFilters: map[string][]string{"tp_unidade": {"1", "01", "2", "02"}}},
	},
	MinPayloadBytes: 32,
}

// SENATRANFrota reads the monthly fleet spreadsheet found on the landing
// page. The sheet carries a title preface above the header row.
var SENATRANFrota = connector.Definition{
	JobMeta:       connector.JobMeta{Name: "senatran_frota", Source: "SENATRAN", Dataset: "frota_municipio", Wave: "MVP-2", Table: "silver.fact_indicator"},
	HeaderMarkers: []string{"uf", "municipio"},
	NameColumns:   []string{"municipio"},
	UFColumns:     []string{"uf"},
	Specs: []indicators.Spec{
		{Code: "senatran_frota_total", Name: "Frota total de veiculos", Unit: "veiculos", Category: "mobilidade",
			Columns: []string{"total"}, Aggregator: indicators.Sum},
		{Code: "senatran_frota_automovel", Name: "Automoveis", Unit: "veiculos", Category: "mobilidade",
			Columns: []string{"automovel"}, Aggregator: indicators.Sum},
		{Code: "senatran_frota_motocicleta", Name: "Motocicletas", Unit: "veiculos", Category: "mobilidade",
			Columns: []string{"motocicleta"}, Aggregator: indicators.Sum},
	},
	MinPayloadBytes: 512,
}

var finbraReceitas = []string{"Receitas Brutas Realizadas"}

// SICONFIFinbra selects revenue accounts through row filters over the long
// FINBRA layout (one row per account and column).
var SICONFIFinbra = connector.Definition{
	JobMeta:       connector.JobMeta{Name: "siconfi_finbra", Source: "SICONFI", Dataset: "finbra_receitas", Wave: "MVP-2", Table: "silver.fact_indicator"},
	HeaderMarkers: []string{"instituicao", "cod_ibge"},
	CodeColumns:   []string{"cod_ibge", "cod_ibge_municipio"},
	NameColumns:   []string{"instituicao"},
	UFColumns:     []string{"uf"},
	Specs: []indicators.Spec{
		{Code: "siconfi_receitas_correntes", Name: "Receitas correntes", Unit: "BRL", Category: "financas",
			Columns: []string{"valor"}, Aggregator: indicators.Sum,
			RowFilters: map[string][]string{
				"coluna": finbraReceitas,
				"conta":  {"1.0.0.0.00.00.00 - Receitas Correntes", "Receitas Correntes"},
			}},
		{Code: "siconfi_receita_tributaria", Name: "Impostos, taxas e contribuicoes de melhoria", Unit: "BRL", Category: "financas",
			Columns: []string{"valor"}, Aggregator: indicators.Sum,
			RowFilters: map[string][]string{
				"coluna": finbraReceitas,
				"conta":  {"1.1.0.0.00.00.00 - Impostos, Taxas e Contribuicoes de Melhoria", "Impostos, Taxas e Contribuicoes de Melhoria"},
			}},
		{Code: "siconfi_transferencias_correntes", Name: "Transferencias correntes", Unit: "BRL", Category: "financas",
			Columns: []string{"valor"}, Aggregator: indicators.Sum,
			RowFilters: map[string][]string{
				"coluna": finbraReceitas,
				"conta":  {"1.7.0.0.00.00.00 - Transferencias Correntes", "Transferencias Correntes"},
			}},
	},
	MinPayloadBytes: 64,
}

// INPEQueimadas counts fire hotspots; the feed names municipalities without
// a code and spells the state out, so only the name matches.
var INPEQueimadas = connector.Definition{
	JobMeta:     connector.JobMeta{Name: "inpe_queimadas", Source: "INPE", Dataset: "focos_queimadas", Wave: "MVP-2", Table: "silver.fact_indicator"},
	NameColumns: []string{"municipio"},
	YearColumns: []string{"datahora", "data_hora_gmt"},
	Specs: []indicators.Spec{
		{Code: "inpe_focos_total", Name: "Focos de queimada", Unit: "focos", Category: "meio_ambiente",
			Aggregator: indicators.Count},
		{Code: "inpe_focos_satelite_referencia", Name: "Focos de queimada (satelite de referencia)", Unit: "focos", Category: "meio_ambiente",
			Aggregator: indicators.Count,
			RowFilters: map[string][]string{"satelite": {"AQUA_M-T", "AQUA_M-M"}}},
		{Code: "inpe_frp_max", Name: "Potencia radiativa maxima do fogo", Unit: "MW", Category: "meio_ambiente",
			Columns: []string{"frp"}, Aggregator: indicators.Max},
	},
	MinPayloadBytes: 32,
}
