package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statewarp",
			Subsystem: "console",
			Name:      "requests_total",
			Help:      "Control surface requests.",
		},
		[]string{"service", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statewarp",
			Subsystem: "console",
			Name:      "request_duration_seconds",
			Help:      "Control surface request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route", "status"},
	)
	envelopesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statewarp",
			Subsystem: "session",
			Name:      "envelopes_sent_total",
			Help:      "SYNC envelopes handed to the transport.",
		},
		[]string{"role"},
	)
	envelopesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statewarp",
			Subsystem: "session",
			Name:      "envelopes_received_total",
			Help:      "Envelopes received from the peer, by outcome.",
		},
		[]string{"role", "outcome"},
	)
	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statewarp",
			Subsystem: "session",
			Name:      "status_transitions_total",
			Help:      "Connection status transitions, by status entered.",
		},
		[]string{"role", "status"},
	)
	encodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statewarp",
			Subsystem: "codec",
			Name:      "encode_duration_seconds",
			Help:      "Time spent encoding outbound state values.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"binary"},
	)
	sendDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statewarp",
			Subsystem: "session",
			Name:      "send_delay_seconds",
			Help:      "Time from submit until the envelope reached the transport.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)
	syncLag = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statewarp",
			Subsystem: "session",
			Name:      "sync_lag_seconds",
			Help:      "Wall-clock gap between the peer stamping an envelope and applying it locally.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)
	heldEncodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "statewarp",
			Subsystem: "session",
			Name:      "held_encodes",
			Help:      "Finished encodes waiting for an earlier seq.",
		},
		[]string{"role"},
	)
)

// Outcome labels for RecordEnvelopeReceived.
const (
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeMalformed = "malformed"
	OutcomeIgnored   = "ignored"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			envelopesSent,
			envelopesReceived,
			statusTransitions,
			encodeDuration,
			sendDelay,
			syncLag,
			heldEncodes,
		)
	})
}

func RecordHTTPRequest(service, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordEnvelopeSent(role string) {
	RegisterMetrics()
	envelopesSent.WithLabelValues(role).Inc()
}

func RecordEnvelopeReceived(role, outcome string) {
	RegisterMetrics()
	envelopesReceived.WithLabelValues(role, outcome).Inc()
}

func RecordStatus(role, status string) {
	RegisterMetrics()
	statusTransitions.WithLabelValues(role, status).Inc()
}

func ObserveEncode(hasBinary bool, duration time.Duration) {
	RegisterMetrics()
	encodeDuration.WithLabelValues(strconv.FormatBool(hasBinary)).Observe(duration.Seconds())
}

func ObserveSendDelay(role string, d time.Duration) {
	RegisterMetrics()
	sendDelay.WithLabelValues(role).Observe(d.Seconds())
}

// ObserveSyncLag records lag between two clocks; negative skew is clamped to zero.
func ObserveSyncLag(role string, d time.Duration) {
	RegisterMetrics()
	if d < 0 {
		d = 0
	}
	syncLag.WithLabelValues(role).Observe(d.Seconds())
}

func SetHeldEncodes(role string, n int) {
	RegisterMetrics()
	heldEncodes.WithLabelValues(role).Set(float64(n))
}
