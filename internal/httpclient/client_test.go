package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/httpclient"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
)

func newClient(retries int) *httpclient.Client {
	return httpclient.New(httpclient.Options{
		Timeout:    2 * time.Second,
		MaxRetries: retries,
		Backoff:    time.Millisecond,
	}, logging.Discard())
}

func TestGetBytesRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte("codigo_municipio;valor\n3121605;49.493\n"))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	p, err := newClient(3).GetBytes(context.Background(), srv.URL+"/flaky", httpclient.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, string(p.Body), "3121605")
	assert.Equal(t, "text/csv; charset=utf-8", p.ContentType)
}

func TestGetBytesGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(2).GetBytes(context.Background(), srv.URL, httpclient.RequestOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTransientNetwork))
	assert.Equal(t, int32(3), calls.Load(), "max_retries+1 attempts")
}

func TestGetBytesPerRequestRetryOverride(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	zero := 0
	_, err := newClient(5).GetBytes(context.Background(), srv.URL, httpclient.RequestOptions{MaxRetries: &zero})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetBytesRejectsSmallPayloadWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	_, err := newClient(3).GetBytes(context.Background(), srv.URL, httpclient.RequestOptions{MinBytes: 100})
	require.Error(t, err)
	assert.ErrorIs(t, err, httpclient.ErrPayloadTooSmall)
	assert.True(t, errs.Is(err, errs.KindParse))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetBytesRejectsUnexpectedContentType(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	_, err := newClient(3).GetBytes(context.Background(), srv.URL, httpclient.RequestOptions{
		ExpectedContentTypes: []string{"text/csv", "octet-stream"},
	})
	require.ErrorIs(t, err, httpclient.ErrUnexpectedContentType)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSONWithParamsAndRedirect(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new?"+r.URL.RawQuery, http.StatusFound)
	})
	r.Get("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + r.URL.Query().Get("id") + `"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	var out struct {
		ID string `json:"id"`
	}
	err := newClient(0).GetJSON(context.Background(), srv.URL+"/old", httpclient.RequestOptions{
		Params: map[string][]string{"id": {"3121605"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "3121605", out.ID)
}

func TestGetJSONDecodeErrorIsParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := newClient(0).GetJSON(context.Background(), srv.URL, httpclient.RequestOptions{}, &out)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindParse))
}
