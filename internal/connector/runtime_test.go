package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/bronze"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/config"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/datasource"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/httpclient"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/indicators"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse/warehousetest"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

var diamantina = territory.Municipality{
	TerritoryID: uuid.MustParse("00000000-0000-0000-0000-000003121605"),
	Name:        "Diamantina",
	UF:          "MG",
	IBGECode:    "3121605",
}

type harness struct {
	rt       *Runtime
	store    *warehousetest.Store
	settings config.Settings
	srv      *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	s := config.Settings{
		MunicipalityIBGECode: "3121605",
		DataRoot:             filepath.Join(root, "data"),
		ConfigRoot:           filepath.Join(root, "configs"),
		PipelineVersion:      "0.1.0",
		OrchestratorName:     "test",
	}

	r := chi.NewRouter()
	r.Get("/ok.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("codigo_municipio;valor\n3121605;49.493\n"))
	})
	r.Get("/other.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("codigo_municipio;valor\n3100104;1\n"))
	})
	r.Get("/broken.csv", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	log := logging.Discard()
	client := httpclient.New(httpclient.Options{Timeout: 2 * time.Second, MaxRetries: 0, Backoff: time.Millisecond}, log)
	bs := bronze.NewStore(bronze.Config{
		BronzeRoot:      s.BronzeRoot(),
		ManifestsRoot:   s.ManifestsRoot(),
		Orchestrator:    s.OrchestratorName,
		PipelineVersion: s.PipelineVersion,
	}, nil)
	store := warehousetest.New(diamantina)
	rt := NewRuntime(Deps{
		Store:  store,
		Bronze: bs,
		Env:    &Env{Settings: s, HTTP: client, Resolver: datasource.NewResolver(client, bs, log)},
		Log:    log,
	})
	return &harness{rt: rt, store: store, settings: s, srv: srv}
}

func (h *harness) writeCatalog(t *testing.T, job string, paths ...string) {
	t.Helper()
	doc := "resources:\n"
	for _, p := range paths {
		doc += "  - uri: " + h.srv.URL + p + "\n    extension: csv\n"
	}
	p := h.settings.CatalogPath(job)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))
}

func testDefinition() Definition {
	return Definition{
		JobMeta:     JobMeta{Name: "test_tabular", Source: "TEST", Dataset: "valores", Wave: "MVP-1"},
		CodeColumns: []string{"codigo_municipio"},
		NameColumns: []string{"municipio"},
		Specs: []indicators.Spec{{
			Code: "test_valor", Name: "Valor", Unit: "count", Category: "geral",
			Columns: []string{"valor"}, Aggregator: indicators.Sum,
		}},
	}
}

func checkNamed(checks []ops.Check, name string) (ops.Check, bool) {
	for _, c := range checks {
		if c.Name == name {
			return c, true
		}
	}
	return ops.Check{}, false
}

func TestRemoteSuccessWritesFactAndBronze(t *testing.T) {
	h := newHarness(t)
	h.writeCatalog(t, "test_tabular", "/ok.csv")
	def := testDefinition()

	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2024"}, def.Job().Body)

	require.Equal(t, models.RunSuccess, res.Status, res.Errors)
	assert.Equal(t, int64(1), res.RowsExtracted)
	assert.Equal(t, int64(1), res.RowsWritten)
	require.Len(t, h.store.Batches, 1)
	require.Len(t, h.store.Batches[0].Indicators, 1)
	fact := h.store.Batches[0].Indicators[0]
	assert.Equal(t, "49.493", fact.Value.String())
	assert.Equal(t, diamantina.TerritoryID, fact.TerritoryID)
	assert.Equal(t, "2024", fact.ReferencePeriod)

	require.NotNil(t, res.Bronze)
	m, err := bronze.LoadManifest(res.Bronze.ManifestPath)
	require.NoError(t, err)
	sum, err := bronze.ChecksumFile(res.Bronze.RawPath)
	require.NoError(t, err)
	assert.Equal(t, sum, m.Raw.ChecksumSHA256)
	assert.Equal(t, res.RunID, m.Ingestion.RunID)
	assert.Equal(t, []string{"silver.fact_indicator"}, m.Load.TablesWritten)

	run, ok := h.store.LastRun()
	require.True(t, ok)
	assert.Equal(t, models.RunSuccess, run.Run.Status)
	assert.Equal(t, int64(1), run.Run.RowsLoaded)
	require.NotNil(t, run.Run.ChecksumSHA256)
	assert.Equal(t, sum, *run.Run.ChecksumSHA256)
	c, ok := checkNamed(run.Checks, "data_source_resolved")
	require.True(t, ok)
	assert.Equal(t, models.CheckPass, c.Status)
	assert.Zero(t, ops.CountStatus(run.Checks, models.CheckFail))
}

func TestManualFallbackWhenRemotesFail(t *testing.T) {
	h := newHarness(t)
	h.writeCatalog(t, "test_tabular", "/broken.csv")
	dir := filepath.Join(h.settings.ManualRoot(), "test")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_diamantina_2025.csv"), []byte("municipio;valor\nDiamantina;10\nSerro;3\n"), 0o644))
	def := testDefinition()

	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2025"}, def.Job().Body)

	require.Equal(t, models.RunSuccess, res.Status, res.Errors)
	assert.Contains(t, res.Warnings, "manual fallback: using test_diamantina_2025.csv")
	require.Len(t, h.store.Batches, 1)
	assert.Equal(t, "10", h.store.Batches[0].Indicators[0].Value.String())

	run, _ := h.store.LastRun()
	c, ok := checkNamed(run.Checks, "remote_request_failures")
	require.True(t, ok)
	assert.Equal(t, models.CheckWarn, c.Status)
	assert.Equal(t, 1, c.ObservedValue)
}

func TestBlockedWhenNoCandidateUsable(t *testing.T) {
	h := newHarness(t)
	h.writeCatalog(t, "test_tabular", "/other.csv")
	def := testDefinition()

	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2024"}, def.Job().Body)

	assert.Equal(t, models.RunBlocked, res.Status)
	assert.Zero(t, res.RowsWritten)
	assert.Nil(t, res.Bronze)
	assert.Empty(t, h.store.Batches)

	run, ok := h.store.LastRun()
	require.True(t, ok)
	assert.Equal(t, models.RunBlocked, run.Run.Status)
	var failing []string
	for _, c := range run.Checks {
		if c.Status == models.CheckFail {
			failing = append(failing, c.Name)
		}
	}
	assert.Equal(t, []string{"data_source_resolved"}, failing)
}

func TestDryRunWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.writeCatalog(t, "test_tabular", "/ok.csv")
	def := testDefinition()

	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2024", DryRun: true}, def.Job().Body)

	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Zero(t, h.store.Commits)
	assert.Nil(t, res.Bronze)
	p, ok := res.Preview.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "remote", p["source_type"])
	assert.Len(t, p["rows"], 1)
	_, err := os.Stat(h.settings.BronzeRoot())
	assert.True(t, os.IsNotExist(err))
}

func TestMunicipalityMissingFailsRun(t *testing.T) {
	h := newHarness(t)
	h.store.Municipality = nil
	def := testDefinition()

	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2024"}, def.Job().Body)

	assert.Equal(t, models.RunFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "ibge_admin_bootstrap")
	run, ok := h.store.LastRun()
	require.True(t, ok)
	assert.Equal(t, models.RunFailed, run.Run.Status)
	require.Len(t, run.Checks, 1)
	assert.Equal(t, "job_execution", run.Checks[0].Name)
	assert.Equal(t, string(errs.KindContextNotReady), run.Checks[0].Details["error_kind"])
}

func TestInvalidPeriodFailsRun(t *testing.T) {
	h := newHarness(t)
	def := testDefinition()
	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2024-1"}, def.Job().Body)
	assert.Equal(t, models.RunFailed, res.Status)
	assert.Contains(t, res.Errors[0], "reference_period")
}

func TestMissingCatalogIsConfigurationFailure(t *testing.T) {
	h := newHarness(t)
	def := testDefinition()
	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2024"}, def.Job().Body)
	assert.Equal(t, models.RunFailed, res.Status)
	run, _ := h.store.LastRun()
	assert.Equal(t, string(errs.KindConfiguration), run.Checks[0].Details["error_kind"])
}

func TestWarehouseFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.writeCatalog(t, "test_tabular", "/ok.csv")
	h.store.FailWrite = true
	def := testDefinition()

	res := h.rt.Execute(context.Background(), def.JobMeta, RunOptions{ReferencePeriod: "2024"}, def.Job().Body)

	assert.Equal(t, models.RunFailed, res.Status)
	assert.Zero(t, res.RowsWritten)
	assert.Empty(t, h.store.Batches)
	require.Len(t, h.store.Runs, 1)
	assert.Equal(t, models.RunFailed, h.store.Runs[0].Run.Status)
	_, err := os.Stat(h.settings.BronzeRoot())
	assert.True(t, os.IsNotExist(err))
}

func TestFailedRunRecordingErrorIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.store.FailRecord = true
	body := func(context.Context, *RunContext) (*Outcome, error) { return nil, errors.New("boom") }

	res := h.rt.Execute(context.Background(), JobMeta{Name: "x", Source: "X", Dataset: "x"}, RunOptions{ReferencePeriod: "2024"}, body)

	assert.Equal(t, models.RunFailed, res.Status)
	assert.Equal(t, []string{"boom"}, res.Errors)
	assert.Empty(t, h.store.Runs)
}

func TestNotImplementedJob(t *testing.T) {
	h := newHarness(t)
	meta := JobMeta{Name: "scaffold", Source: "MDS", Dataset: "x", NotImplemented: true}
	called := false
	body := func(context.Context, *RunContext) (*Outcome, error) { called = true; return nil, nil }

	res := h.rt.Execute(context.Background(), meta, RunOptions{ReferencePeriod: "2024"}, body)

	assert.False(t, called)
	assert.Equal(t, models.RunNotImplemented, res.Status)
	assert.Len(t, res.Warnings, 1)
	assert.Zero(t, res.RowsWritten)
	run, ok := h.store.LastRun()
	require.True(t, ok)
	assert.Equal(t, models.RunNotImplemented, run.Run.Status)
}

func TestUpstreamUnavailableBlocks(t *testing.T) {
	h := newHarness(t)
	body := func(context.Context, *RunContext) (*Outcome, error) {
		return nil, errs.Errorf(errs.KindUpstreamUnavailable, "api down")
	}
	res := h.rt.Execute(context.Background(), JobMeta{Name: "x", Source: "X", Dataset: "x"}, RunOptions{ReferencePeriod: "2024"}, body)
	assert.Equal(t, models.RunBlocked, res.Status)
	assert.Contains(t, res.Warnings, "api down")
	c, ok := checkNamed(res.Checks, "data_source_resolved")
	require.True(t, ok)
	assert.Equal(t, models.CheckFail, c.Status)
	assert.Equal(t, "api down", c.Details["last_warning"])
}

func TestRegistry(t *testing.T) {
	Register(Job{Meta: JobMeta{Name: "zz_registry_test", Wave: "ZZ"}, Body: func(context.Context, *RunContext) (*Outcome, error) { return nil, nil }})
	_, ok := Lookup("zz_registry_test")
	assert.True(t, ok)
	assert.Panics(t, func() { Register(Job{Meta: JobMeta{Name: "zz_registry_test"}}) })
	all := Jobs()
	assert.Equal(t, "zz_registry_test", all[len(all)-1].Meta.Name)

	_, err := newHarness(t).rt.Run(context.Background(), "does_not_exist", RunOptions{})
	assert.Error(t, err)
}
