package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTask(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "")

	l := Labels{Job: "lotss-dr3", Kind: "lotss-dr3-mosaic", Outcome: "downloaded"}
	m.ObserveTask(l, 2048, 1.5)
	m.ObserveTask(l, 1024, 0.5)
	m.ObserveTask(Labels{Job: "lotss-dr3", Kind: "lotss-dr3-mosaic", Outcome: "already-present"}, 0, 0.001)
	m.IncFallbacks(Labels{Job: "lotss-dr3", Kind: "lotss-dr2-mosaic"})
	m.AddTargets("lotss-dr3", "covered", 7)
	m.SetLastRequestIndex("lotss-dr3", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("lotss-dr3", "lotss-dr3-mosaic", "downloaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("lotss-dr3", "lotss-dr3-mosaic", "already-present")))
	assert.Equal(t, 3072.0, testutil.ToFloat64(m.BytesDownloaded.WithLabelValues("lotss-dr3", "lotss-dr3-mosaic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("lotss-dr3", "lotss-dr2-mosaic")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.TargetsTotal.WithLabelValues("lotss-dr3", "covered")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LastRequestIndex.WithLabelValues("lotss-dr3")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FetchDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTask(Labels{Job: "x"}, 1, 1)
	m.IncFallbacks(Labels{})
	m.AddTargets("x", "covered", 1)
	m.SetLastRequestIndex("x", 1)
	m.IncAuditErrors("x")
	m.IncMetadataErrors("x")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "sky_fetcher")
	m.IncAuditErrors("manga-cube")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `sky_fetcher_audit_errors_total{job="manga-cube"} 1`))

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
