package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Lifecycle
	MetricPollsOpened = "ballot_polls_opened_total"
	MetricPollsClosed = "ballot_polls_closed_total"
	// Votes
	MetricVotesRecorded  = "ballot_votes_recorded_total"
	MetricDuplicateVotes = "ballot_duplicate_votes_total"
	MetricNoSelection    = "ballot_no_selection_total"
	MetricNoActivePoll   = "ballot_no_active_poll_total"
	MetricSelections     = "ballot_selections_total"
	// Dispatch
	MetricUnknownCommands = "ballot_unknown_commands_total"
	// Outbound
	MetricDeliveryFailures = "ballot_delivery_failures_total"
	// Gate
	MetricGateWait = "ballot_gate_wait_seconds"
)

// MetricService owns the ballot metrics on a private registry, so several
// engines (e.g. in tests) never collide on registration.
type MetricService struct {
	MetricsMap map[string]prometheus.Metric
	Registry   *prometheus.Registry
}

func NewMetricService() *MetricService {
	ms := &MetricService{
		MetricsMap: make(map[string]prometheus.Metric),
		Registry:   prometheus.NewRegistry(),
	}
	ms.Registry.MustRegister(collectors.NewGoCollector())

	ms.counter(MetricPollsOpened, "Polls opened")
	ms.counter(MetricPollsClosed, "Polls closed and tallied")
	ms.counter(MetricVotesRecorded, "Votes recorded")
	ms.counter(MetricDuplicateVotes, "Confirms rejected because the voter already voted on the item")
	ms.counter(MetricNoSelection, "Confirms rejected because no candidate was selected")
	ms.counter(MetricNoActivePoll, "Confirms rejected because no poll was open")
	ms.counter(MetricSelections, "Candidate selections stored")
	ms.counter(MetricUnknownCommands, "Unrecognized command texts")
	ms.counter(MetricDeliveryFailures, "Outbound chat deliveries that failed")

	gateWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricGateWait,
		Help:    "Time spent waiting to enter the ballot gate",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})
	ms.MetricsMap[MetricGateWait] = gateWait
	ms.Registry.MustRegister(gateWait)

	return ms
}

func (m *MetricService) counter(name, help string) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	m.MetricsMap[name] = c
	m.Registry.MustRegister(c)
}

// Inc increments the named counter. Unknown names are ignored.
func (m *MetricService) Inc(name string) {
	if m == nil {
		return
	}
	if c, ok := m.MetricsMap[name].(prometheus.Counter); ok {
		c.Inc()
	}
}

func (m *MetricService) ObserveGateWait(d time.Duration) {
	if m == nil {
		return
	}
	if h, ok := m.MetricsMap[MetricGateWait].(prometheus.Histogram); ok {
		h.Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricService) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
