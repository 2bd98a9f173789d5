package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics is
// valid and records nothing, so tests can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	submissionsTotal *prometheus.CounterVec
	siteScrapesTotal *prometheus.CounterVec
	debitFailures    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcommerce_submissions_total",
		Help: "Submissions processed, by terminal outcome.",
	}, []string{"outcome"})
	m.siteScrapesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcommerce_site_scrapes_total",
		Help: "Per-site scrape attempts, by result.",
	}, []string{"site", "result"})
	m.debitFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloudcommerce_debit_failures_total",
		Help: "Credit debits that failed after a successful run.",
	})

	m.registry.MustRegister(m.submissionsTotal, m.siteScrapesTotal, m.debitFailures)
	return m
}

func (m *Metrics) SubmissionFinished(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SiteScraped(site string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.siteScrapesTotal.WithLabelValues(site, result).Inc()
}

func (m *Metrics) DebitFailed() {
	if m == nil {
		return
	}
	m.debitFailures.Inc()
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
