package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	ms := NewMetricService()
	ms.Inc(MetricVotesRecorded)
	ms.Inc(MetricVotesRecorded)
	ms.Inc("not_a_metric")

	c := ms.MetricsMap[MetricVotesRecorded].(prometheus.Counter)
	require.Equal(t, 2.0, testutil.ToFloat64(c))
}

func TestNilServiceIsSafe(t *testing.T) {
	var ms *MetricService
	ms.Inc(MetricPollsOpened)
	ms.ObserveGateWait(time.Millisecond)
}

func TestHandler(t *testing.T) {
	ms := NewMetricService()
	ms.Inc(MetricPollsOpened)
	ms.ObserveGateWait(2 * time.Millisecond)

	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, MetricPollsOpened+" 1"))
	require.True(t, strings.Contains(body, MetricGateWait+"_count 1"))
}
