package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/bronze"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/httpclient"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/tabular"
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{Timeout: 2 * time.Second, MaxRetries: 0, Backoff: time.Millisecond}, logging.Discard())
}

// municipalityProbe counts rows carrying the Diamantina code.
func municipalityProbe(f *tabular.Frame, c Candidate) (int, []string) {
	out, _ := tabular.FilterMunicipality(f, tabular.MunicipalityFilter{
		Code: "3121605", Name: "Diamantina", UF: "MG",
		CodeColumns: []string{"codigo_municipio"}, NameColumns: []string{"municipio"},
		FileName: c.FileName,
	})
	return out.Len(), nil
}

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ok.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("codigo_municipio;valor\n3121605;49.493\n"))
	})
	r.Get("/other.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("codigo_municipio;valor\n3100104;1\n"))
	})
	r.Get("/broken.csv", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.Get("/landing", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<a href="/files/frota_2023.csv">2023</a>
			<a href="files/frota_2024.csv">2024</a>
			<a href="/files/frota_2024.csv">dup</a>
			<a href="/files/leiame.pdf">pdf</a>
		</body></html>`))
	})
	r.Get("/files/frota_2024.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("codigo_municipio;total\n3121605;21000\n"))
	})
	r.Get("/files/frota_2023.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("codigo_municipio;total\n3121605;20000\n"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalogCandidatesExpandsPlaceholders(t *testing.T) {
	c := &Catalog{Resources: []Resource{
		{URI: "https://x.test/censo_{year}.csv"},
		{URI: "https://x.test/pinned.xlsx", ReferencePeriod: "2020"},
		{URI: "https://x.test/api?periodo={reference_period}", Extension: "json"},
	}}
	got := c.Candidates("2024-05")
	require.Len(t, got, 2)
	assert.Equal(t, RemoteCandidate{URI: "https://x.test/censo_2024.csv", Extension: ".csv"}, got[0])
	assert.Equal(t, RemoteCandidate{URI: "https://x.test/api?periodo=2024-05", Extension: ".json"}, got[1])
}

func TestLoadCatalog(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.yml")
	require.NoError(t, os.WriteFile(p, []byte("resources:\n  - uri: https://a.test/x.csv\n    extension: csv\ndiscovery:\n  landing_page: https://a.test/\n  extensions: [csv, xlsx]\n"), 0o644))
	c, err := LoadCatalog(p)
	require.NoError(t, err)
	assert.Len(t, c.Resources, 1)
	assert.Equal(t, []string{"csv", "xlsx"}, c.Discovery.Extensions)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestExtractLinks(t *testing.T) {
	base, _ := url.Parse("https://gov.test/dados/")
	body := []byte(`<a href="a_2023.xlsx">a</a><a href="/b_2024.xls">b</a><a href="c.pdf">c</a><a href="https://cdn.test/d_2024.zip">d</a>`)
	links, err := ExtractLinks(base, body, regexp.MustCompile(`\d{4}`), []string{"xls", "xlsx", "zip"}, "2024")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://gov.test/b_2024.xls",
		"https://cdn.test/d_2024.zip",
		"https://gov.test/dados/a_2023.xlsx",
	}, links)
}

func TestResolveRemoteSuccessAfterFailure(t *testing.T) {
	srv := fixtureServer(t)
	cat := &Catalog{Resources: []Resource{{URI: srv.URL + "/broken.csv"}, {URI: srv.URL + "/other.csv"}, {URI: srv.URL + "/ok.csv"}}}

	res, rep, err := NewResolver(testClient(), nil, logging.Discard()).Resolve(context.Background(), Request{
		Source: "INEP", Period: "2024", Catalog: cat, Probe: municipalityProbe,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, SourceRemote, res.SourceType)
	assert.Equal(t, srv.URL+"/ok.csv", res.SourceURI)
	assert.Equal(t, ".csv", res.Suffix)
	assert.Equal(t, 3, rep.CatalogSize)
	assert.Equal(t, 3, rep.RemoteAttempts)
	assert.Equal(t, 1, rep.RemoteFailures)
	assert.Len(t, res.Warnings, 2)
}

func TestResolveDiscoveryPrefersReferenceYear(t *testing.T) {
	srv := fixtureServer(t)
	cat := &Catalog{Discovery: &Discovery{LandingPage: srv.URL + "/landing", LinkPattern: `frota_\d{4}`, Extensions: []string{"csv"}}}

	res, rep, err := NewResolver(testClient(), nil, logging.Discard()).Resolve(context.Background(), Request{
		Source: "SENATRAN", Period: "2024", Catalog: cat, Probe: municipalityProbe,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, srv.URL+"/files/frota_2024.csv", res.SourceURI)
	assert.Equal(t, 0, rep.CatalogSize)
	assert.Equal(t, 1, rep.RemoteAttempts)
}

func writeManual(t *testing.T, root, source, name, body string, mod time.Time) {
	t.Helper()
	dir := filepath.Join(root, source)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
}

func TestListManualRanking(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeManual(t, root, "inep", "inep_diamantina_2019.csv", "x", now)
	writeManual(t, root, "inep", "inep_diamantina.csv", "x", now)
	writeManual(t, root, "inep", "inep_diamantina_2025_old.csv", "x", now.Add(-time.Hour))
	writeManual(t, root, "inep", "inep_diamantina_2025.csv", "x", now)
	writeManual(t, root, "inep", "notes_2025.pdf", "x", now)

	files, err := ListManual(root, "INEP", "2025")
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"inep_diamantina_2025.csv", "inep_diamantina_2025_old.csv", "inep_diamantina.csv"}, names)

	none, err := ListManual(root, "unknown", "2025")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResolveManualFallback(t *testing.T) {
	srv := fixtureServer(t)
	root := t.TempDir()
	writeManual(t, root, "inep", "inep_diamantina_2025.csv", "codigo_municipio;valor\n3121605;7\n", time.Now())

	res, _, err := NewResolver(testClient(), nil, logging.Discard()).Resolve(context.Background(), Request{
		Source: "INEP", Period: "2025", ManualRoot: root, Probe: municipalityProbe,
		Catalog: &Catalog{Resources: []Resource{{URI: srv.URL + "/broken.csv"}}},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, SourceManual, res.SourceType)
	assert.Equal(t, "inep_diamantina_2025.csv", res.SourceFileName)
	assert.True(t, containsPrefix(res.Warnings, "manual fallback"))
}

func TestResolvePreferManualFirst(t *testing.T) {
	srv := fixtureServer(t)
	root := t.TempDir()
	writeManual(t, root, "mds", "cadunico_diamantina_2025.csv", "codigo_municipio;valor\n3121605;7\n", time.Now())

	res, rep, err := NewResolver(testClient(), nil, logging.Discard()).Resolve(context.Background(), Request{
		Source: "MDS", Period: "2025", ManualRoot: root, PreferManualFirst: true, Probe: municipalityProbe,
		Catalog: &Catalog{Resources: []Resource{{URI: srv.URL + "/ok.csv"}}},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, SourceManual, res.SourceType)
	assert.Equal(t, 0, rep.RemoteAttempts)
}

type fakeCache struct{ items []bronze.Cached }

func (f fakeCache) ListCached(string, string) ([]bronze.Cached, error) { return f.items, nil }

func TestResolveBronzeCacheAndForce(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	good := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(good, []byte("codigo_municipio;valor\n3121605;3\n"), 0o644))
	cache := fakeCache{items: []bronze.Cached{{Path: bad, Extension: "json"}, {Path: good, Extension: "csv"}}}

	r := NewResolver(testClient(), cache, logging.Discard())
	res, _, err := r.Resolve(context.Background(), Request{Source: "DATASUS", Period: "2024", Probe: municipalityProbe})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, SourceBronzeCache, res.SourceType)
	assert.Equal(t, good, res.SourceURI)
	assert.True(t, containsPrefix(res.Warnings, "bronze_cache candidate bad.json unparseable"))

	res, rep, err := r.Resolve(context.Background(), Request{Source: "DATASUS", Period: "2024", Force: true, Probe: municipalityProbe})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, containsPrefix(rep.Warnings, "no usable data source"))
}

func containsPrefix(items []string, prefix string) bool {
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
