package daemon

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docref"

type metrics struct {
	reg            *prom.Registry
	resolves       *prom.CounterVec
	manifestFetch  *prom.CounterVec
	loadDuration   prom.Histogram
	modulesLoaded  prom.Gauge
	pagesIndexed   *prom.GaugeVec
	rewrittenLinks *prom.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{reg: prom.NewRegistry()}
	m.resolves = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "resolve_total",
		Help:      "Link resolutions by outcome",
	}, []string{"result"})
	m.manifestFetch = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "manifest_fetch_total",
		Help:      "External manifest fetches by outcome",
	}, []string{"result"})
	m.loadDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "module_load_duration_seconds",
		Help:      "Time to load, merge and index one module",
		Buckets:   prom.DefBuckets,
	})
	m.modulesLoaded = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "modules_loaded",
		Help:      "Modules currently held in memory",
	})
	m.pagesIndexed = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "module_pages",
		Help:      "Pages per loaded module",
	}, []string{"module"})
	m.rewrittenLinks = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "rewrite_links_total",
		Help:      "Markdown dri: links by outcome",
	}, []string{"result"})
	m.reg.MustRegister(m.resolves, m.manifestFetch, m.loadDuration, m.modulesLoaded, m.pagesIndexed, m.rewrittenLinks)
	return m
}

func (m *metrics) observeResolve(found bool) {
	if found {
		m.resolves.WithLabelValues("found").Inc()
	} else {
		m.resolves.WithLabelValues("missing").Inc()
	}
}

// observeFetch matches external.WithObserver.
func (m *metrics) observeFetch(_ string, result string) {
	m.manifestFetch.WithLabelValues(result).Inc()
}

func (m *metrics) observeLoad(d time.Duration) {
	m.loadDuration.Observe(d.Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
