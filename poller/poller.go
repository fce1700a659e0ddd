// Package poller drives the SIRI side of the bridge: a single worker cycling
// through the currently operating lines, one rate-limited vehicle-monitoring
// request per iteration.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/converter"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/gtfs"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/metrics"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/siri"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/store"
)

// VehicleSource is the slice of the SIRI client the poller needs.
type VehicleSource interface {
	VehicleMonitoring(ctx context.Context, lineRef string) ([]*siri.VehicleActivity, error)
	LinesDiscovery(ctx context.Context) ([]string, error)
}

// Poller round-robins over the operating route set. The real rate limit is
// global across all lines on the partner side, so this is deliberately a
// single worker, never a pool: route visits are strictly sequential.
type Poller struct {
	source    VehicleSource
	resource  *gtfs.Resource
	projector *converter.Projector
	store     *store.Store
	collector *metrics.Collector

	interval     time.Duration
	linesRefresh time.Duration

	// monitored maps GTFS route ids to the operator's raw line references,
	// as returned by lines discovery.
	monitored   map[string]string
	monitoredAt time.Time

	cursor  int
	retried bool
}

func New(source VehicleSource, resource *gtfs.Resource, projector *converter.Projector, st *store.Store, collector *metrics.Collector, interval, linesRefresh time.Duration) *Poller {
	return &Poller{
		source:       source,
		resource:     resource,
		projector:    projector,
		store:        st,
		collector:    collector,
		interval:     interval,
		linesRefresh: linesRefresh,
	}
}

// Run loops until the context ends. Each iteration waits out the remainder of
// the rate-limit interval measured from the previous iteration's start, then
// visits one route. A failed fetch is retried once at the same cursor
// position; a second consecutive failure skips to the next route and resets
// the retry budget.
func (p *Poller) Run(ctx context.Context) {
	var lastStart time.Time

	for ctx.Err() == nil {
		if !lastStart.IsZero() {
			if !sleepUntil(ctx, lastStart.Add(p.interval)) {
				return
			}
		}
		lastStart = time.Now()

		p.refreshMonitoredLines(ctx)

		routes := p.pollableRoutes()
		if p.collector != nil {
			p.collector.OperatingRoutes.Set(float64(len(routes)))
		}
		if len(routes) == 0 {
			continue
		}

		// The route set may have shrunk since the last visit.
		p.cursor %= len(routes)
		route := routes[p.cursor]

		if err := p.pollLine(ctx, route); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !p.retried {
				log.Warn().Err(err).Str("route", route.id).Msg("Vehicle fetch failed, retrying this line")
				p.retried = true
				p.countPoll("failed")
			} else {
				log.Warn().Err(err).Str("route", route.id).Msg("Vehicle fetch failed twice, skipping line")
				p.cursor++
				p.retried = false
				p.countPoll("skipped")
			}
			continue
		}

		p.cursor++
		p.retried = false
		p.countPoll("ok")
	}
}

type pollableRoute struct {
	id      string // GTFS route id
	lineRef string // reference sent to the SIRI service
}

// pollableRoutes narrows the operating routes to those the SIRI service
// monitors, carrying the operator's raw line reference for the request. When
// discovery has not produced anything yet, all operating routes are polled by
// their own id.
func (p *Poller) pollableRoutes() []pollableRoute {
	operating := p.resource.Operating()
	if operating == nil {
		return nil
	}

	routes := make([]pollableRoute, 0, len(operating.Routes))
	for _, id := range operating.Routes {
		if len(p.monitored) == 0 {
			routes = append(routes, pollableRoute{id: id, lineRef: id})
			continue
		}
		if raw, ok := p.monitored[id]; ok {
			routes = append(routes, pollableRoute{id: id, lineRef: raw})
		}
	}
	return routes
}

func (p *Poller) refreshMonitoredLines(ctx context.Context) {
	if !p.monitoredAt.IsZero() && time.Since(p.monitoredAt) < p.linesRefresh {
		return
	}

	lines, err := p.source.LinesDiscovery(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Lines discovery failed, keeping previous monitored set")
		// Back off a little instead of re-attempting every iteration.
		p.monitoredAt = time.Now().Add(-p.linesRefresh + time.Minute)
		return
	}

	monitored := make(map[string]string, len(lines))
	for _, raw := range lines {
		monitored[siri.ParseRef(raw)] = raw
	}
	p.monitored = monitored
	p.monitoredAt = time.Now()

	log.Info().Int("lines", len(monitored)).Msg("Refreshed monitored lines")
}

func (p *Poller) pollLine(ctx context.Context, route pollableRoute) error {
	start := time.Now()
	activities, err := p.source.VehicleMonitoring(ctx, route.lineRef)
	if p.collector != nil {
		p.collector.FetchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}

	log.Debug().Str("route", route.id).Int("vehicles", len(activities)).Msg("Fetched monitored vehicles")
	p.process(activities)
	return nil
}

func (p *Poller) process(activities []*siri.VehicleActivity) {
	schedule := p.resource.Schedule()
	operating := p.resource.Operating()

	for _, activity := range activities {
		obs, err := siri.NewObservation(activity)
		if err != nil {
			log.Debug().Err(err).Str("vehicle", activity.VehicleMonitoringRef).Msg("Dropping incomplete activity")
			p.countObservation("rejected")
			continue
		}

		entities, err := p.projector.Project(obs, schedule, operating)
		if err != nil {
			if errors.Is(err, converter.ErrUnmatched) {
				log.Warn().Str("vehicle", obs.VehicleRef).Str("journey", obs.JourneyRef).Msg("No trip found for vehicle, skipping")
				p.countObservation("unmatched")
			}
			continue
		}

		if entities.TripUpdate != nil {
			p.store.PutTripUpdate(entities.TripID, entities.TripUpdate)
		}
		if entities.VehiclePosition != nil {
			p.store.PutVehiclePosition(entities.VehicleRef, entities.VehiclePosition)
		}
		p.countObservation("matched")
	}
}

func (p *Poller) countPoll(result string) {
	if p.collector != nil {
		p.collector.Polls.WithLabelValues(result).Inc()
	}
}

func (p *Poller) countObservation(outcome string) {
	if p.collector != nil {
		p.collector.Observations.WithLabelValues(outcome).Inc()
	}
}

// sleepUntil blocks until the deadline or context cancellation; it reports
// whether the deadline was reached.
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
