package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lvlup"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	stakesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staking",
			Name:      "stakes_created_total",
			Help:      "Stake sessions created.",
		},
	)

	habitReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staking",
			Name:      "habit_reports_total",
			Help:      "Habit completion reports by outcome.",
		},
		[]string{"outcome"},
	)

	stakesExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staking",
			Name:      "stakes_expired_total",
			Help:      "Stake sessions moved to expired by the sweep.",
		},
	)

	signatures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signer",
			Name:      "signatures_total",
			Help:      "Signatures issued by kind.",
		},
		[]string{"kind"},
	)

	signerHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signer",
			Name:      "healthy",
			Help:      "1 when the last signer self-test passed.",
		},
	)

	extraLives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extra_life",
			Name:      "invocations_total",
			Help:      "Extra life invocations by result.",
		},
		[]string{"result"},
	)

	settlementsConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "confirmed_total",
			Help:      "Commitment periods settled on-chain.",
		},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		stakesCreated,
		habitReports,
		stakesExpired,
		signatures,
		signerHealthy,
		extraLives,
		settlementsConfirmed,
		jobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordStakeCreated() { stakesCreated.Inc() }

func RecordHabitReport(outcome string) { habitReports.WithLabelValues(outcome).Inc() }

func RecordStakesExpired(n int64) { stakesExpired.Add(float64(n)) }

func RecordSignature(kind string) { signatures.WithLabelValues(kind).Inc() }

func SetSignerHealthy(ok bool) {
	if ok {
		signerHealthy.Set(1)
		return
	}
	signerHealthy.Set(0)
}

func RecordExtraLife(result string) { extraLives.WithLabelValues(result).Inc() }

func RecordSettlementConfirmed() { settlementsConfirmed.Inc() }

func RecordJobRun(job string, success bool) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}
