// Package metrics counts what a generator run did, for export in the
// node_exporter textfile format at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	HandlingSpec    = "spec"
	HandlingDefault = "default"

	FeedParsed = "parsed"
	FeedReused = "reused"
)

type Metrics struct {
	Registry *prometheus.Registry

	FeedLoads          *prometheus.CounterVec
	RoutesGenerated    *prometheus.CounterVec
	TripsAssigned      *prometheus.CounterVec
	AmbiguousTrips     *prometheus.CounterVec
	UnregisteredRoutes prometheus.Counter
	CanonicalStops     *prometheus.GaugeVec
	RouteDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	feedLoads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandon_feed_loads_total",
			Help: "GTFS feeds loaded, by whether they were parsed or reused from storage",
		},
		[]string{"result"},
	)

	routesGenerated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandon_routes_generated_total",
			Help: "Routes generated, by handling (spec or default)",
		},
		[]string{"handling"},
	)

	tripsAssigned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandon_trips_assigned_total",
			Help: "Trips assigned to a direction",
		},
		[]string{"route", "direction"},
	)

	ambiguousTrips := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandon_ambiguous_trips_total",
			Help: "Trips of spec routes that matched neither or both directions",
		},
		[]string{"route"},
	)

	unregisteredRoutes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandon_unregistered_routes_total",
		Help: "Routes without a trip spec, handled by the default rules",
	})

	canonicalStops := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brandon_canonical_stops",
			Help: "Length of the canonical stop sequence of a route direction",
		},
		[]string{"route", "direction"},
	)

	routeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandon_route_duration_seconds",
			Help:    "Time spent generating a single route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handling"},
	)

	registry.MustRegister(
		feedLoads,
		routesGenerated,
		tripsAssigned,
		ambiguousTrips,
		unregisteredRoutes,
		canonicalStops,
		routeDuration,
	)

	return &Metrics{
		Registry:           registry,
		FeedLoads:          feedLoads,
		RoutesGenerated:    routesGenerated,
		TripsAssigned:      tripsAssigned,
		AmbiguousTrips:     ambiguousTrips,
		UnregisteredRoutes: unregisteredRoutes,
		CanonicalStops:     canonicalStops,
		RouteDuration:      routeDuration,
	}
}

// WriteTextfile writes every metric to path, for pickup by
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
