// Package metrics exposes the bridge's operational counters on a dedicated
// Prometheus listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Collector struct {
	reg *prometheus.Registry

	Polls        *prometheus.CounterVec // result label: ok|failed|skipped
	Observations *prometheus.CounterVec // outcome label: matched|unmatched|rejected
	Evictions    *prometheus.CounterVec // kind label: trip_update|vehicle_position

	TripUpdates      prometheus.Gauge
	VehiclePositions prometheus.Gauge
	OperatingRoutes  prometheus.Gauge

	FetchDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siri_gtfsrt_polls_total",
			Help: "SIRI vehicle-monitoring polls by result.",
		}, []string{"result"}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siri_gtfsrt_observations_total",
			Help: "Vehicle observations by processing outcome.",
		}, []string{"outcome"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siri_gtfsrt_evictions_total",
			Help: "Entities evicted by the sweep loop.",
		}, []string{"kind"}),
		TripUpdates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siri_gtfsrt_trip_updates",
			Help: "Trip-update entities currently stored.",
		}),
		VehiclePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siri_gtfsrt_vehicle_positions",
			Help: "Vehicle-position entities currently stored.",
		}),
		OperatingRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siri_gtfsrt_operating_routes",
			Help: "Route ids in the current operating set.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "siri_gtfsrt_fetch_duration_seconds",
			Help:    "Duration of SIRI vehicle-monitoring fetches.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	reg.MustRegister(
		c.Polls, c.Observations, c.Evictions,
		c.TripUpdates, c.VehiclePositions, c.OperatingRoutes,
		c.FetchDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("Metrics listening")
	return srv
}
