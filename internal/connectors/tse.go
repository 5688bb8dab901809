package connectors

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/datasource"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/indicators"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/tabular"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// TSE files carry the TSE municipality code, not the IBGE one, so rows are
// matched on name and UF.

var TSEElectorate = connector.Definition{
	JobMeta:     connector.JobMeta{Name: "tse_electorate", Source: "TSE", Dataset: "perfil_eleitorado", Wave: "MVP-1", Table: "silver.fact_electorate"},
	NameColumns: []string{"nm_municipio"},
	UFColumns:   []string{"sg_uf"},
	YearColumns: []string{"ano_eleicao"},
	Build:       buildElectorate,
	Discover: ckanDiscover(func(year string) string { return "eleitorado-" + year },
		regexp.MustCompile(`perfil_eleitorado`)),
	MinPayloadBytes: 256,
}

var TSEElectionResults = connector.Definition{
	JobMeta:     connector.JobMeta{Name: "tse_election_results", Source: "TSE", Dataset: "votacao_secao", Wave: "MVP-1", Table: "silver.fact_election_result"},
	NameColumns: []string{"nm_municipio"},
	UFColumns:   []string{"sg_uf"},
	YearColumns: []string{"ano_eleicao"},
	Build:       buildElectionResults,
	Discover: ckanDiscover(func(year string) string { return "resultados-" + year },
		regexp.MustCompile(`votacao_secao|detalhe_votacao_munzona`)),
	MinPayloadBytes: 256,
}

type ckanPackage struct {
	Success bool `json:"success"`
	Result  struct {
		Resources []struct {
			URL    string `json:"url"`
			Name   string `json:"name"`
			Format string `json:"format"`
		} `json:"resources"`
	} `json:"result"`
}

// ckanDiscover lists the resources of a CKAN package whose URL or name
// matches include. Files for the municipality's state come first.
func ckanDiscover(packageID func(year string) string, include *regexp.Regexp) connector.DiscoverFunc {
	return func(ctx context.Context, rc *connector.RunContext) ([]datasource.RemoteCandidate, error) {
		if rc.Env.HTTP == nil {
			return nil, nil
		}
		id := packageID(datasource.Year(rc.Options.ReferencePeriod))
		ro := rc.FetchOptions(0, nil)
		ro.Params = url.Values{"id": {id}}
		var pkg ckanPackage
		if err := rc.Env.HTTP.GetJSON(ctx, rc.Env.Settings.TSECKANBaseURL+"/package_show", ro, &pkg); err != nil {
			return nil, fmt.Errorf("ckan package_show %s: %w", id, err)
		}
		if !pkg.Success {
			return nil, fmt.Errorf("ckan package_show %s: success=false", id)
		}

		uf := strings.ToLower(rc.Municipality.UF)
		var local, national []datasource.RemoteCandidate
		for _, r := range pkg.Result.Resources {
			if r.URL == "" || !include.MatchString(strings.ToLower(r.URL+" "+r.Name)) {
				continue
			}
			ext := strings.ToLower(strings.TrimSpace(r.Format))
			if ext == "" {
				ext = strings.TrimPrefix(path.Ext(r.URL), ".")
			}
			if !tabular.IsSupported("." + ext) {
				continue
			}
			c := datasource.RemoteCandidate{URI: r.URL, Extension: "." + ext}
			base := strings.ToLower(path.Base(r.URL))
			if uf != "" && strings.Contains(base, "_"+uf+".") {
				local = append(local, c)
			} else {
				national = append(national, c)
			}
		}
		return append(local, national...), nil
	}
}

func buildElectorate(in connector.BuildInput) (warehouse.Batch, []string) {
	f := in.Frame
	votersCol := f.FirstPresent("qt_eleitores_perfil", "qt_eleitores")
	if votersCol == "" {
		return warehouse.Batch{}, []string{"electorate: voters column not found"}
	}
	sexCol := f.FirstPresent("ds_genero", "ds_sexo")
	ageCol := f.FirstPresent("ds_faixa_etaria")
	eduCol := f.FirstPresent("ds_grau_escolaridade", "ds_grau_instrucao")
	year := periodYear(in.Period)

	type key struct{ sex, age, edu string }
	totals := map[key]int64{}
	var order []key
	for _, r := range f.Rows {
		v, ok := indicators.ParseNumber(r[votersCol])
		if !ok {
			continue
		}
		k := key{cell(r, sexCol), cell(r, ageCol), cell(r, eduCol)}
		if _, seen := totals[k]; !seen {
			order = append(order, k)
		}
		totals[k] += v.IntPart()
	}

	var b warehouse.Batch
	for _, k := range order {
		b.Electorate = append(b.Electorate, models.FactElectorate{
			TerritoryID:   in.Municipality.TerritoryID,
			ReferenceYear: year,
			Sex:           k.sex,
			AgeRange:      k.age,
			Education:     k.edu,
			Voters:        totals[k],
			UpdatedAt:     in.Now,
		})
	}
	return b, nil
}

// resultMetrics maps source columns to election-result metrics.
var resultMetrics = []struct{ column, metric string }{
	{"qt_votos", "votos"},
	{"qt_votos_nominais", "votos_nominais"},
	{"qt_aptos", "eleitores_aptos"},
	{"qt_comparecimento", "comparecimento"},
	{"qt_abstencoes", "abstencoes"},
	{"qt_votos_brancos", "votos_brancos"},
	{"qt_votos_nulos", "votos_nulos"},
}

// buildElectionResults aggregates metrics per round and office and emits the
// electoral zones and sections the rows mention.
func buildElectionResults(in connector.BuildInput) (warehouse.Batch, []string) {
	f := in.Frame
	officeCol := f.FirstPresent("ds_cargo")
	roundCol := f.FirstPresent("nr_turno")
	yearCol := f.FirstPresent("ano_eleicao")

	var metrics []struct{ column, metric string }
	for _, m := range resultMetrics {
		if f.Has(m.column) {
			metrics = append(metrics, m)
		}
	}
	if len(metrics) == 0 {
		return warehouse.Batch{}, []string{"election results: no metric column found"}
	}

	type key struct {
		year, round int
		office      string
		metric      string
	}
	totals := map[key]decimal.Decimal{}
	var order []key
	for _, r := range f.Rows {
		year := periodYear(in.Period)
		if y, err := strconv.Atoi(strings.TrimSpace(cell(r, yearCol))); err == nil && y > 0 {
			year = y
		}
		round := 1
		if n, err := strconv.Atoi(strings.TrimSpace(cell(r, roundCol))); err == nil && n > 0 {
			round = n
		}
		office := strings.ToUpper(cell(r, officeCol))
		for _, m := range metrics {
			v, ok := indicators.ParseNumber(r[m.column])
			if !ok {
				continue
			}
			k := key{year, round, office, m.metric}
			if _, seen := totals[k]; !seen {
				order = append(order, k)
			}
			totals[k] = totals[k].Add(v)
		}
	}

	var b warehouse.Batch
	for _, k := range order {
		b.ElectionResults = append(b.ElectionResults, models.FactElectionResult{
			TerritoryID:   in.Municipality.TerritoryID,
			ElectionYear:  k.year,
			ElectionRound: k.round,
			Office:        k.office,
			Metric:        k.metric,
			Value:         totals[k],
			UpdatedAt:     in.Now,
		})
	}
	b.Territories = electoralTerritories(f, in)
	return b, nil
}

// electoralTerritories derives zone and section rows from nr_zona/nr_secao.
func electoralTerritories(f *tabular.Frame, in connector.BuildInput) []models.DimTerritory {
	zoneCol := f.FirstPresent("nr_zona")
	if zoneCol == "" {
		return nil
	}
	sectionCol := f.FirstPresent("nr_secao")
	code := in.Municipality.IBGECode
	muniKey := territory.CanonicalKey(models.LevelMunicipality, code)

	zones := map[string]bool{}
	sections := map[string]string{}
	for _, r := range f.Rows {
		zone := tabular.CodeDigits(r[zoneCol])
		if zone == "" {
			continue
		}
		zones[zone] = true
		if sectionCol != "" {
			if s := tabular.CodeDigits(r[sectionCol]); s != "" {
				sections[zone+"-"+s] = zone
			}
		}
	}

	var rows []models.DimTerritory
	for _, zone := range sortedKeys(zones) {
		row := territory.NewRow(models.LevelElectoralZone, code+"-"+zone, "Zona eleitoral "+zone, code, "TSE")
		row.TSEZone = ptr(zone)
		row.ParentCanonicalKey = muniKey
		row.UpdatedAt = in.Now
		row.Metadata = models.NewJSONB(map[string]any{"origin": in.Dataset})
		rows = append(rows, row)
	}
	for _, id := range sortedKeys(sections) {
		zone := sections[id]
		section := strings.TrimPrefix(id, zone+"-")
		row := territory.NewRow(models.LevelElectoralSection, code+"-"+id, "Secao eleitoral "+zone+"/"+section, code, "TSE")
		row.TSEZone = ptr(zone)
		row.TSESection = ptr(section)
		row.ParentCanonicalKey = territory.CanonicalKey(models.LevelElectoralZone, code+"-"+zone)
		row.UpdatedAt = in.Now
		row.Metadata = models.NewJSONB(map[string]any{"origin": in.Dataset})
		rows = append(rows, row)
	}
	return rows
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cell(r tabular.Row, col string) string {
	if col == "" {
		return ""
	}
	return strings.TrimSpace(r[col])
}

func periodYear(p string) int {
	y, _ := strconv.Atoi(datasource.Year(p))
	return y
}
