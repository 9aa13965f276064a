package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.TransactionWrite("create", nil)
	m.AIResponseCreated("ui", nil)
	m.SyncExport("exported")
	m.RateLimited()
	m.SuspiciousRequest()
	assert.NoError(t, m.RegisterCache("pages", func() (int64, int64) { return 0, 0 }))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()
	m.TransactionWrite("create", nil)
	m.TransactionWrite("create", nil)
	m.TransactionWrite("update", errors.New("boom"))
	m.SyncExport("exported")
	m.RateLimited()

	out := scrape(t, m)
	assert.Contains(t, out, `dompet_transaction_writes_total{op="create",result="ok"} 2`)
	assert.Contains(t, out, `dompet_transaction_writes_total{op="update",result="error"} 1`)
	assert.Contains(t, out, `dompet_sync_exports_total{result="exported"} 1`)
	assert.Contains(t, out, `dompet_http_rate_limited_total 1`)
}

func TestObserveHTTPUsesUnmatchedRoute(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "", 404, time.Millisecond)
	m.ObserveHTTP("GET", "GET /dashboard", 200, time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, `dompet_http_requests_total{code="404",method="GET",route="unmatched"} 1`)
	assert.Contains(t, out, `dompet_http_requests_total{code="200",method="GET",route="GET /dashboard"} 1`)
}

func TestHandlerExposesCacheStats(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterCache("pages", func() (int64, int64) { return 7, 3 }))
	assert.Error(t, m.RegisterCache("pages", func() (int64, int64) { return 0, 0 }))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `dompet_cache_hits_total{cache="pages"} 7`)
	assert.Contains(t, string(body), `dompet_cache_misses_total{cache="pages"} 3`)
}
