package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "ecoshare_"

	resultSuccess = "success"
	resultFailed  = "failed"
	resultTimeout = "timeout"
	resultError   = "error"
	resultAborted = "aborted"
)

var (
	registerOnce sync.Once

	onboardingTransitions *prometheus.CounterVec
	onboardingSessions    prometheus.Gauge

	pairingAttempts *prometheus.CounterVec
	pairingLatency  *prometheus.HistogramVec

	deviceCommits *prometheus.CounterVec
	deviceEvents  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers the service metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		onboardingTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "onboarding_transitions_total",
				Help: "Onboarding state transitions by source and target state",
			},
			[]string{"from", "to"},
		)
		onboardingSessions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "onboarding_sessions",
				Help: "Open onboarding sessions",
			},
		)

		pairingAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pairing_attempts_total",
				Help: "Pairing attempts by result",
			},
			[]string{"result"},
		)
		pairingLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pairing_latency_seconds",
				Help:    "Pairing attempt latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		deviceCommits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_commits_total",
				Help: "Devices committed by onboarding, by result",
			},
			[]string{"result"},
		)
		deviceEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_events_total",
				Help: "Device record lifecycle events by type",
			},
			[]string{"event"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"method", "route", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		prometheus.MustRegister(
			onboardingTransitions,
			onboardingSessions,
			pairingAttempts,
			pairingLatency,
			deviceCommits,
			deviceEvents,
			httpRequests,
			httpLatency,
		)
	})
}

// IncOnboardingTransition counts a session state change.
func IncOnboardingTransition(from, to string) {
	if onboardingTransitions != nil {
		onboardingTransitions.WithLabelValues(from, to).Inc()
	}
}

// SetOnboardingSessions sets the open session gauge.
func SetOnboardingSessions(n int) {
	if onboardingSessions != nil {
		onboardingSessions.Set(float64(n))
	}
}

// ObservePairing records a pairing attempt outcome and its latency.
func ObservePairing(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if pairingAttempts != nil {
		pairingAttempts.WithLabelValues(result).Inc()
	}
	if pairingLatency != nil {
		pairingLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func IncDeviceCommit(result string) {
	if result == "" {
		result = resultSuccess
	}
	if deviceCommits != nil {
		deviceCommits.WithLabelValues(result).Inc()
	}
}

func IncDeviceEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if deviceEvents != nil {
		deviceEvents.WithLabelValues(event).Inc()
	}
}

// ObserveHTTP records a served request.
func ObserveHTTP(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultFailed  = resultFailed
	ResultTimeout = resultTimeout
	ResultError   = resultError
	ResultAborted = resultAborted
)
