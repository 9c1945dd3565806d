// Package metrics exposes Prometheus collectors for the scrape scheduler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reservationsTotal    *prometheus.CounterVec
	dispatchesTotal      *prometheus.CounterVec
	scrapeOutcomesTotal  *prometheus.CounterVec
	postsStoredTotal     *prometheus.CounterVec
	quarantinedWorkers   prometheus.Gauge
	dueTargetsPerCycle   prometheus.Histogram
	scrapeDurationSec    *prometheus.HistogramVec
	quarantineReleases   prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		reservationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_reservations_total",
				Help: "Worker reservation attempts, labeled by platform and result.",
			},
			[]string{"platform", "result"},
		)

		dispatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_dispatches_total",
				Help: "Scrape jobs dispatched to the queue, labeled by platform and result.",
			},
			[]string{"platform", "result"},
		)

		scrapeOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_scrape_outcomes_total",
				Help: "Executor job outcomes, labeled by platform and outcome kind.",
			},
			[]string{"platform", "outcome"},
		)

		postsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_posts_stored_total",
				Help: "Raw posts persisted, labeled by platform.",
			},
			[]string{"platform"},
		)

		quarantinedWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_quarantined_workers",
				Help: "Workers currently sitting out a quarantine window.",
			},
		)

		dueTargetsPerCycle = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscout_due_targets_per_cycle",
				Help:    "Due targets picked up per scheduling cycle.",
				Buckets: prometheus.LinearBuckets(0, 5, 11),
			},
		)

		scrapeDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadscout_scrape_duration_seconds",
				Help:    "Platform scrape call duration.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		)

		quarantineReleases = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscout_quarantine_releases_total",
				Help: "Workers returned to the pool by the quarantine sweep.",
			},
		)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveReservation records one reservation attempt.
func ObserveReservation(platform, result string) {
	Init()
	reservationsTotal.WithLabelValues(platform, result).Inc()
}

// ObserveDispatch records one dispatch attempt.
func ObserveDispatch(platform, result string) {
	Init()
	dispatchesTotal.WithLabelValues(platform, result).Inc()
}

// ObserveScrapeOutcome records one executor job outcome.
func ObserveScrapeOutcome(platform, outcome string) {
	Init()
	scrapeOutcomesTotal.WithLabelValues(platform, outcome).Inc()
}

// AddPostsStored records persisted raw posts.
func AddPostsStored(platform string, n int) {
	Init()
	postsStoredTotal.WithLabelValues(platform).Add(float64(n))
}

// SetQuarantinedWorkers records the current quarantined worker count.
func SetQuarantinedWorkers(n int) {
	Init()
	quarantinedWorkers.Set(float64(n))
}

// ObserveDueTargets records the batch size of one scheduling cycle.
func ObserveDueTargets(n int) {
	Init()
	dueTargetsPerCycle.Observe(float64(n))
}

// ObserveScrapeDuration records one platform scrape call duration in seconds.
func ObserveScrapeDuration(platform string, seconds float64) {
	Init()
	scrapeDurationSec.WithLabelValues(platform).Observe(seconds)
}

// AddQuarantineReleases records workers released by the sweep.
func AddQuarantineReleases(n int) {
	Init()
	quarantineReleases.Add(float64(n))
}
