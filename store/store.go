// Package store holds the latest GTFS-Realtime entities between polls and
// evicts them once their projected relevance has passed.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/metrics"
)

// Store is a concurrency-safe pair of keyed entity collections: trip updates
// keyed by trip id and vehicle positions keyed by vehicle reference. Writers
// overwrite, only the sweep deletes.
type Store struct {
	mu               sync.RWMutex
	tripUpdates      map[string]*gtfsrtpb.FeedEntity
	vehiclePositions map[string]*gtfsrtpb.FeedEntity

	ttl           time.Duration
	sweepInterval time.Duration

	collector *metrics.Collector
}

// New creates a store evicting entities whose last relevant time is older
// than ttl. The collector may be nil.
func New(ttl, sweepInterval time.Duration, collector *metrics.Collector) *Store {
	return &Store{
		tripUpdates:      map[string]*gtfsrtpb.FeedEntity{},
		vehiclePositions: map[string]*gtfsrtpb.FeedEntity{},
		ttl:              ttl,
		sweepInterval:    sweepInterval,
		collector:        collector,
	}
}

func (s *Store) PutTripUpdate(tripID string, entity *gtfsrtpb.FeedEntity) {
	s.mu.Lock()
	s.tripUpdates[tripID] = entity
	s.mu.Unlock()
	s.updateSizes()
}

func (s *Store) PutVehiclePosition(vehicleRef string, entity *gtfsrtpb.FeedEntity) {
	s.mu.Lock()
	s.vehiclePositions[vehicleRef] = entity
	s.mu.Unlock()
	s.updateSizes()
}

// TripUpdates returns a snapshot of the trip-update entities, ordered by
// entity id so repeated feed assemblies are stable.
func (s *Store) TripUpdates() []*gtfsrtpb.FeedEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.tripUpdates)
}

// VehiclePositions returns a snapshot of the vehicle-position entities.
func (s *Store) VehiclePositions() []*gtfsrtpb.FeedEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.vehiclePositions)
}

func snapshot(entities map[string]*gtfsrtpb.FeedEntity) []*gtfsrtpb.FeedEntity {
	out := make([]*gtfsrtpb.FeedEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetId() < out[j].GetId() })
	return out
}

// Sweep removes trip updates whose last relevant time (final projected
// arrival, or the entity's own timestamp when no stops remain) is older than
// the threshold, and vehicle positions by the same rule against their own
// timestamp. A vehicle position whose associated trip update still projects a
// future final arrival is kept, so vehicles do not vanish from the position
// feed while their trip update claims future activity.
func (s *Store) Sweep(now time.Time) (removedTripUpdates, removedVehiclePositions int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tripID, entity := range s.tripUpdates {
		if now.Sub(lastRelevantTime(entity)) > s.ttl {
			delete(s.tripUpdates, tripID)
			removedTripUpdates++
		}
	}

	for vehicleRef, entity := range s.vehiclePositions {
		vehicle := entity.GetVehicle()

		if tripID := vehicle.GetTrip().GetTripId(); tripID != "" {
			if update, ok := s.tripUpdates[tripID]; ok {
				if arrival, ok := finalArrival(update); ok && arrival.After(now) {
					continue
				}
			}
		}

		observed := time.Unix(int64(vehicle.GetTimestamp()), 0)
		if now.Sub(observed) > s.ttl {
			delete(s.vehiclePositions, vehicleRef)
			removedVehiclePositions++
		}
	}

	if s.collector != nil {
		s.collector.Evictions.WithLabelValues("trip_update").Add(float64(removedTripUpdates))
		s.collector.Evictions.WithLabelValues("vehicle_position").Add(float64(removedVehiclePositions))
	}
	s.updateSizesLocked()

	return removedTripUpdates, removedVehiclePositions
}

// RunSweepLoop sweeps the store on a fixed interval until the context ends.
func (s *Store) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removedTU, removedVP := s.Sweep(time.Now())
			if removedTU > 0 || removedVP > 0 {
				log.Debug().
					Int("tripUpdates", removedTU).
					Int("vehiclePositions", removedVP).
					Msg("Swept stale entities")
			}
		}
	}
}

func lastRelevantTime(entity *gtfsrtpb.FeedEntity) time.Time {
	if arrival, ok := finalArrival(entity); ok {
		return arrival
	}
	return time.Unix(int64(entity.GetTripUpdate().GetTimestamp()), 0)
}

func finalArrival(entity *gtfsrtpb.FeedEntity) (time.Time, bool) {
	updates := entity.GetTripUpdate().GetStopTimeUpdate()
	for i := len(updates) - 1; i >= 0; i-- {
		if arrival := updates[i].GetArrival(); arrival != nil && arrival.Time != nil {
			return time.Unix(arrival.GetTime(), 0), true
		}
	}
	return time.Time{}, false
}

func (s *Store) updateSizes() {
	if s.collector == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.updateSizesLocked()
}

func (s *Store) updateSizesLocked() {
	if s.collector == nil {
		return
	}
	s.collector.TripUpdates.Set(float64(len(s.tripUpdates)))
	s.collector.VehiclePositions.Set(float64(len(s.vehiclePositions)))
}
