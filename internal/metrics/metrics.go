// Package metrics defines the Prometheus instrumentation for the scrape
// pipeline.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. Constructing against
// an explicit registerer keeps tests free of global registry collisions.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	CountriesScraped prometheus.Counter
	CitiesScraped    prometheus.Counter
	CountriesSkipped prometheus.Counter
	UpsertsTotal     *prometheus.CounterVec
	SessionRestarts  prometheus.Counter
}

// New registers all collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoscraper_runs_total",
			Help: "The total number of scrape runs by terminal status.",
		}, []string{"status"}),
		CountriesScraped: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscraper_countries_scraped_total",
			Help: "The total number of country entries scraped.",
		}),
		CitiesScraped: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscraper_cities_scraped_total",
			Help: "The total number of city entries scraped.",
		}),
		CountriesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscraper_countries_skipped_total",
			Help: "The total number of countries skipped for a missing identity or URL.",
		}),
		UpsertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "geoscraper_upserts_total",
			Help: "The total number of reconciled rows by entity and outcome.",
		}, []string{"entity", "outcome"}),
		SessionRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "geoscraper_session_restarts_total",
			Help: "The total number of browser session restarts.",
		}),
	}
}

// Snapshot gathers the current counter values keyed by metric name plus
// label signature. One-shot commands use it to report final counts, since
// their registry dies with the process.
func Snapshot(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			counter := metric.GetCounter()
			if counter == nil {
				continue
			}
			name := family.GetName()
			if labels := metric.GetLabel(); len(labels) > 0 {
				parts := make([]string, 0, len(labels))
				for _, label := range labels {
					parts = append(parts, label.GetName()+"="+label.GetValue())
				}
				name += "{" + strings.Join(parts, ",") + "}"
			}
			out[name] = counter.GetValue()
		}
	}
	return out, nil
}
