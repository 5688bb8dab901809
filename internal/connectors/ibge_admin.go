package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/datasource"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// AdminBootstrap loads the municipality and its districts from the IBGE
// localidades API. Every other connector depends on the municipality row.
var AdminBootstrap = connector.Job{
	Meta: connector.JobMeta{
		Name:             "ibge_admin_bootstrap",
		Source:           "IBGE",
		Dataset:          "localidades_distritos",
		Wave:             "MVP-1",
		Table:            "silver.dim_territory",
		SkipMunicipality: true,
	},
	Body: runAdminBootstrap,
}

// ibgeDistrict is one element of /localidades/municipios/{id}/distritos.
type ibgeDistrict struct {
	ID        json.Number `json:"id"`
	Nome      string      `json:"nome"`
	Municipio struct {
		ID   json.Number `json:"id"`
		Nome string      `json:"nome"`
	} `json:"municipio"`
}

type ibgeMunicipality struct {
	ID   json.Number `json:"id"`
	Nome string      `json:"nome"`
}

func runAdminBootstrap(ctx context.Context, rc *connector.RunContext) (*connector.Outcome, error) {
	env := rc.Env
	if env.HTTP == nil {
		return nil, errs.Errorf(errs.KindConfiguration, "ibge_admin_bootstrap: no HTTP client configured")
	}
	code := env.Settings.MunicipalityIBGECode
	uri := fmt.Sprintf("%s/localidades/municipios/%s/distritos", env.Settings.IBGEAPIBaseURL, code)

	out := &connector.Outcome{}
	raw, sourceType, sourceURI, err := fetchDistricts(ctx, rc, uri, out)
	if err != nil {
		return nil, err
	}

	var districts []ibgeDistrict
	if err := json.Unmarshal(raw, &districts); err != nil {
		return nil, errs.E(errs.KindParse, "decode distritos", err)
	}

	name := municipalityName(ctx, rc, code, districts, out)
	now := time.Now().UTC()
	batch := bootstrapBatch(code, name, districts, now)

	out.Resolved = true
	out.SourceType = sourceType
	out.SourceURI = sourceURI
	out.RowsExtracted = int64(len(districts))
	out.Batch = batch
	out.Raw = &connector.Raw{Bytes: raw, Extension: ".json", URI: sourceURI}
	out.Details = map[string]any{"municipality_name": name, "districts": len(batch.Territories) - 1}
	out.Checks = append(out.Checks, districtCheck(len(batch.Territories)-1))
	return out, nil
}

// fetchDistricts tries the API and then the local bootstrap drop.
func fetchDistricts(ctx context.Context, rc *connector.RunContext, uri string, out *connector.Outcome) ([]byte, datasource.SourceType, string, error) {
	payload, err := rc.Env.HTTP.GetBytes(ctx, uri, rc.FetchOptions(2, []string{"json"}))
	if err == nil {
		return payload.Body, datasource.SourceRemote, uri, nil
	}
	if ctx.Err() != nil {
		return nil, "", "", ctx.Err()
	}
	out.Warn("remote %s failed: %v", uri, err)

	local := filepath.Join(rc.Env.Settings.BootstrapRoot(), fmt.Sprintf("ibge_distritos_%s.json", rc.Env.Settings.MunicipalityIBGECode))
	raw, rerr := os.ReadFile(local)
	if rerr != nil {
		return nil, "", "", errs.E(errs.KindUpstreamUnavailable, "fetch distritos", err)
	}
	out.Warn("manual fallback: using %s", filepath.Base(local))
	return raw, datasource.SourceManual, local, nil
}

// municipalityName prefers the name embedded in the districts payload, then
// the municipality endpoint, then the seat district.
func municipalityName(ctx context.Context, rc *connector.RunContext, code string, districts []ibgeDistrict, out *connector.Outcome) string {
	for _, d := range districts {
		if d.Municipio.ID.String() == code && strings.TrimSpace(d.Municipio.Nome) != "" {
			return strings.TrimSpace(d.Municipio.Nome)
		}
	}
	var m ibgeMunicipality
	uri := fmt.Sprintf("%s/localidades/municipios/%s", rc.Env.Settings.IBGEAPIBaseURL, code)
	if err := rc.Env.HTTP.GetJSON(ctx, uri, rc.FetchOptions(0, nil), &m); err == nil && strings.TrimSpace(m.Nome) != "" {
		return strings.TrimSpace(m.Nome)
	} else if err != nil {
		out.Warn("municipality lookup %s failed: %v", uri, err)
	}
	for _, d := range districts {
		if strings.HasPrefix(d.ID.String(), code) && d.Nome != "" {
			return d.Nome
		}
	}
	return "Municipio " + code
}

// bootstrapBatch builds the municipality row and one district row per entry
// of the payload, linking districts through the municipality's canonical key.
func bootstrapBatch(code, name string, districts []ibgeDistrict, now time.Time) warehouse.Batch {
	muni := territory.NewRow(models.LevelMunicipality, code, name, code, "IBGE")
	muni.IBGEGeocode = ptr(code)
	muni.UpdatedAt = now
	muni.Metadata = models.NewJSONB(map[string]any{"origin": "ibge_localidades"})

	b := warehouse.Batch{Territories: []models.DimTerritory{muni}}
	for _, d := range districts {
		id := d.ID.String()
		if id == "" {
			continue
		}
		row := territory.NewRow(models.LevelDistrict, id, strings.TrimSpace(d.Nome), code, "IBGE")
		row.IBGEGeocode = ptr(id)
		row.ParentCanonicalKey = muni.CanonicalKey
		row.UpdatedAt = now
		row.Metadata = models.NewJSONB(map[string]any{"origin": "ibge_localidades"})
		b.Territories = append(b.Territories, row)
	}
	return b
}

func districtCheck(n int) ops.Check {
	if n >= 1 {
		return ops.Pass("districts_loaded", n, 1, nil)
	}
	return ops.Warn("districts_loaded", n, 1, nil)
}

func ptr[T any](v T) *T { return &v }
