package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokenphone_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Chain metrics
	NodesRegistered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokenphone_nodes_registered_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"}, // "created", "exists", "rejected"
	)

	ChainLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "brokenphone_chain_length",
			Help: "Number of registered chain members",
		},
	)

	RelaysHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokenphone_relays_handled_total",
			Help: "Relay calls handled",
		},
		[]string{"role"}, // "relay" or "terminal"
	)

	ForwardErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brokenphone_forward_errors_total",
			Help: "Failed forwards to the next hop",
		},
	)

	PlaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokenphone_plays_total",
			Help: "Play requests by result",
		},
		[]string{"result"}, // "Success", "Failure", "conflict", "timeout", "error"
	)

	PlayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brokenphone_play_duration_seconds",
			Help:    "Time from play request to chain completion",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Infrastructure metrics
	ArchiveLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brokenphone_archive_latency_seconds",
			Help:    "Play archive write latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"backend"},
	)
)

var (
	httpDurationOnce sync.Once
	httpDuration     *prometheus.HistogramVec
)

// HTTPRequestDuration returns the request latency histogram. It is registered
// on first use with buckets reaching maxWait, the longest a request may block
// (a play waits for the whole chain). Later calls return the same histogram.
func HTTPRequestDuration(maxWait time.Duration) *prometheus.HistogramVec {
	httpDurationOnce.Do(func() {
		httpDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brokenphone_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: DurationBuckets(maxWait),
			},
			[]string{"method", "path"},
		)
	})
	return httpDuration
}

// DurationBuckets spans 1ms to upper on an exponential scale. upper is
// raised to at least one second.
func DurationBuckets(upper time.Duration) []float64 {
	if upper < time.Second {
		upper = time.Second
	}
	return prometheus.ExponentialBucketsRange(0.001, upper.Seconds(), 14)
}
