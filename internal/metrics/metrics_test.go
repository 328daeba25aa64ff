package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Ingested(10, 100)
		m.PassDone("full", "ok", time.Second)
		m.PageServed("complete")
		m.Searched("scoped")
		m.SessionOpened()
		m.SessionClosed()
		m.IngestStarted()
		m.IngestStopped()
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Ingested(120, 4096)
	m.Ingested(30, 1024)
	m.PageServed("pending")
	m.PageServed("pending")
	m.Searched("streamed")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 150.0, testutil.ToFloat64(m.rows))
	assert.Equal(t, 5120.0, testutil.ToFloat64(m.bytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pages.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues("streamed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.PassDone("preview", "ok", 3*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `jsonview_pass_results_total{pass="preview",result="ok"} 1`)
	assert.Contains(t, string(body), "jsonview_pass_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
