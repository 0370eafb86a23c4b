// Package metrics exposes Prometheus instrumentation for navigation sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tasour/wikipedia-graph/internal/models"
)

var (
	navigationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikigraph_navigations_total",
		Help: "Navigations by load state",
	}, []string{"state"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wikigraph_fetch_duration_seconds",
		Help:    "Duration of page info and HTML fetches",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wikigraph_graph_nodes",
		Help: "Current number of nodes in the graph",
	})

	graphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wikigraph_graph_edges",
		Help: "Current number of edges in the graph",
	})

	pendingLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wikigraph_pending_links",
		Help: "Current number of entries in the pending link registry",
	})
)

// Recorder receives session measurements.
type Recorder interface {
	Navigation(state models.LoadState)
	Fetch(d time.Duration)
	Graph(nodes, edges, pending int)
}

// Prometheus records into the default registry.
type Prometheus struct{}

func (Prometheus) Navigation(state models.LoadState) {
	navigationsTotal.WithLabelValues(string(state)).Inc()
}

func (Prometheus) Fetch(d time.Duration) {
	fetchDuration.Observe(d.Seconds())
}

func (Prometheus) Graph(nodes, edges, pending int) {
	graphNodes.Set(float64(nodes))
	graphEdges.Set(float64(edges))
	pendingLinks.Set(float64(pending))
}

// Nop discards measurements.
type Nop struct{}

func (Nop) Navigation(models.LoadState) {}
func (Nop) Fetch(time.Duration)         {}
func (Nop) Graph(int, int, int)         {}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
