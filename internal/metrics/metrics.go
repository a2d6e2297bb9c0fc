package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "admin"

// Reply outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// Registry holds every admin metric. Handler serves it.
var Registry = prometheus.NewRegistry()

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Count of admin requests submitted to backend processes, by request kind.",
		},
		[]string{"kind"},
	)
	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "replies_total",
			Help:      "Count of replies released to admin clients, by outcome.",
		},
		[]string{"outcome"},
	)
	malformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "malformed_total",
			Help:      "Count of client frames rejected as invalid admin requests.",
		},
	)
	bufferedReplies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "buffered_replies",
			Help:      "Replies held back across all connections waiting for an earlier reply.",
		},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "connections_active",
			Help:      "Number of open admin connections.",
		},
	)
	lateRepliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "late_replies_total",
			Help:      "Count of backend replies dropped because the request was already answered.",
		},
	)
	contractViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "contract_violations_total",
			Help:      "Count of connections closed because the substrate broke its delivery contract.",
		},
	)
	replyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "reply_latency_seconds",
			Help:      "Time from submitting a request to releasing its reply, by request kind.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)
)

var registerMetrics sync.Once

// Register all metrics, plus the Go runtime and process collectors.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(requestsTotal)
		Registry.MustRegister(repliesTotal)
		Registry.MustRegister(malformedTotal)
		Registry.MustRegister(bufferedReplies)
		Registry.MustRegister(connectionsActive)
		Registry.MustRegister(lateRepliesTotal)
		Registry.MustRegister(contractViolationsTotal)
		Registry.MustRegister(replyLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the HTTP handler exposing Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordRequest records a request of the given kind sent to the backend.
func RecordRequest(kind string) {
	requestsTotal.WithLabelValues(kind).Inc()
}

// RecordReply records a reply released to a client.
func RecordReply(outcome string) {
	repliesTotal.WithLabelValues(outcome).Inc()
}

// RecordMalformed records a rejected client frame.
func RecordMalformed() {
	malformedTotal.Inc()
}

// AddBufferedReplies adjusts the buffered reply gauge by delta.
func AddBufferedReplies(delta int) {
	bufferedReplies.Add(float64(delta))
}

// ConnectionOpened increments the active connection gauge.
func ConnectionOpened() {
	connectionsActive.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func ConnectionClosed() {
	connectionsActive.Dec()
}

// RecordLateReply records a reply that arrived after its request was answered.
func RecordLateReply() {
	lateRepliesTotal.Inc()
}

// RecordContractViolation records a connection closed on a contract violation.
func RecordContractViolation() {
	contractViolationsTotal.Inc()
}

// RecordReplyLatency records the submit-to-release latency of a request.
func RecordReplyLatency(kind string, d time.Duration) {
	replyLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// Reset clears all admin metrics. Used in tests.
func Reset() {
	requestsTotal.Reset()
	repliesTotal.Reset()
	replyLatency.Reset()
	bufferedReplies.Set(0)
	connectionsActive.Set(0)
}
