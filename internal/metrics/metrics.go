// Package metrics exposes export activity as Prometheus metrics.
//
// Metrics:
//   - tabexport_exports_total: exports by requested format, produced format and status
//   - tabexport_export_degraded_total: exports delivered in a fallback format
//   - tabexport_export_duration_seconds: export duration by requested format
//   - tabexport_export_rows: rows per successful export
//   - tabexport_reports_total: report exports by type and outcome
//   - tabexport_codec_state: current state of each optional codec (1 = current)
//   - tabexport_download_references_outstanding: unreleased download references
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/report"
)

const namespace = "tabexport"

// Collector records export metrics. It implements export.Observer and
// report.Observer.
type Collector struct {
	registry *prometheus.Registry

	exportsTotal   *prometheus.CounterVec
	degradedTotal  *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
	exportRows     prometheus.Histogram
	reportsTotal   *prometheus.CounterVec
}

// NewCollector creates a collector registered on registry. A nil registry
// creates a private one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of exports by requested format, produced format and status",
			},
			[]string{"requested", "produced", "status"},
		),

		degradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_degraded_total",
				Help:      "Exports delivered in a fallback format",
			},
			[]string{"requested", "produced"},
		),

		exportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_duration_seconds",
				Help:      "Duration of exports in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"requested"},
		),

		exportRows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_rows",
				Help:      "Rows per successful export",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10), // 1 to ~262K
			},
		),

		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Report exports by type and outcome",
			},
			[]string{"report_type", "outcome"},
		),
	}

	registry.MustRegister(
		c.exportsTotal,
		c.degradedTotal,
		c.exportDuration,
		c.exportRows,
		c.reportsTotal,
	)
	return c
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveExport implements export.Observer.
func (c *Collector) ObserveExport(ctx context.Context, ev export.Event) {
	requested := string(ev.Requested)
	if requested == "" {
		requested = "unknown"
	}

	status := "success"
	if ev.Err != nil {
		status = "error"
	}
	c.exportsTotal.WithLabelValues(requested, string(ev.Produced), status).Inc()
	c.exportDuration.WithLabelValues(requested).Observe(ev.Duration.Seconds())

	if ev.Err != nil {
		return
	}
	c.exportRows.Observe(float64(ev.Rows))
	if ev.Degraded {
		c.degradedTotal.WithLabelValues(requested, string(ev.Produced)).Inc()
	}
}

// ObserveReport implements report.Observer.
func (c *Collector) ObserveReport(ctx context.Context, ev report.Event) {
	c.reportsTotal.WithLabelValues(string(ev.Type), ev.Kind.String()).Inc()
}

// WatchCodecs exports the state of every codec in registry.
func (c *Collector) WatchCodecs(registry *export.CodecRegistry) {
	c.registry.MustRegister(&codecStateCollector{codecs: registry})
}

// WatchDownloads exports the number of outstanding download references.
func (c *Collector) WatchDownloads(outstanding func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_references_outstanding",
			Help:      "Download references created but not yet released",
		},
		func() float64 { return float64(outstanding()) },
	))
}

// Handler returns the HTTP handler serving the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

var codecStateDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "codec_state"),
	"Current state of each optional codec (1 for the current state)",
	[]string{"codec", "state"},
	nil,
)

var allStates = []export.CodecState{
	export.StateUnset,
	export.StateLoading,
	export.StateLoaded,
	export.StateUnavailable,
}

// codecStateCollector reads codec states at scrape time.
type codecStateCollector struct {
	codecs *export.CodecRegistry
}

func (c *codecStateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- codecStateDesc
}

func (c *codecStateCollector) Collect(ch chan<- prometheus.Metric) {
	for codec, current := range c.codecs.States() {
		for _, s := range allStates {
			v := 0.0
			if s == current {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(codecStateDesc, prometheus.GaugeValue, v, string(codec), s.String())
		}
	}
}
