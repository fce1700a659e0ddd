package converter

import (
	"errors"
	"sort"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/gtfs"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/siri"
)

// ErrUnmatched marks an observation whose journey reference resolves to no
// trip under any currently operating service. The vehicle is dropped, not
// treated as an error.
var ErrUnmatched = errors.New("no matching trip for journey reference")

// Entity id prefixes, kept from the upstream feed convention so entity ids
// stay stable across deploys.
const (
	tripUpdateIDPrefix      = "SM:"
	vehiclePositionIDPrefix = "VM:"
)

// Entities is the projection of a single observation: zero or one trip
// update and zero or one vehicle position, each with its store key.
type Entities struct {
	TripID     string
	TripUpdate *gtfsrtpb.FeedEntity

	VehicleRef      string
	VehiclePosition *gtfsrtpb.FeedEntity
}

// Projector turns vehicle observations into GTFS-Realtime entities using the
// current schedule snapshot.
type Projector struct {
	location *time.Location
}

func NewProjector(location *time.Location) *Projector {
	return &Projector{location: location}
}

// Project resolves the observation's trip, computes its delay and builds the
// resulting entities. Returns ErrUnmatched when no operating service yields a
// known trip id for the observation's journey reference.
func (p *Projector) Project(obs *siri.Observation, schedule *gtfs.Schedule, operating *gtfs.OperatingSet) (*Entities, error) {
	trip := matchTrip(obs.JourneyRef, schedule, operating)
	if trip == nil {
		return nil, ErrUnmatched
	}

	idx := matchStopIndex(obs, trip)

	// Delay is the signed difference between expected and aimed time for
	// whichever pair the call carries, departure preferred.
	var delay int32
	hasDelay := false
	switch {
	case !obs.Call.AimedDeparture.IsZero() && !obs.Call.ExpectedDeparture.IsZero():
		delay = int32(obs.Call.ExpectedDeparture.Sub(obs.Call.AimedDeparture).Seconds())
		hasDelay = true
	case !obs.Call.AimedArrival.IsZero() && !obs.Call.ExpectedArrival.IsZero():
		delay = int32(obs.Call.ExpectedArrival.Sub(obs.Call.AimedArrival).Seconds())
		hasDelay = true
	}
	if idx < 0 {
		delay = 0
	}

	stopped := obs.Call.AtStop
	if !stopped && idx >= 0 && idx == len(trip.StopTimes)-1 &&
		obs.DestinationRef != "" && trip.StopTimes[idx].StopID == obs.DestinationRef {
		stopped = true
	}

	var remaining []gtfs.StopTime
	if idx >= 0 {
		start := idx
		if !stopped {
			start++
		}
		if start < len(trip.StopTimes) {
			remaining = trip.StopTimes[start:]
		}
	}

	timestamp := uint64(obs.RecordedAt.Unix())
	midnight := operating.Date.Midnight(p.location)

	entities := &Entities{
		TripID:     trip.ID,
		VehicleRef: obs.VehicleRef,
	}
	if hasDelay {
		entities.TripUpdate = p.buildTripUpdate(obs, trip, remaining, delay, timestamp, midnight)
	}
	entities.VehiclePosition = p.buildVehiclePosition(obs, trip, remaining, idx, stopped, timestamp)

	return entities, nil
}

// matchTrip composes each operating service id with the journey reference and
// takes the first trip id that exists. Service ids are visited in sorted
// order so repeated observations resolve deterministically.
func matchTrip(journeyRef string, schedule *gtfs.Schedule, operating *gtfs.OperatingSet) *gtfs.Trip {
	serviceIDs := make([]string, 0, len(operating.Services))
	for id := range operating.Services {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	for _, serviceID := range serviceIDs {
		if trip, ok := schedule.Trips[serviceID+journeyRef]; ok {
			return trip
		}
	}
	return nil
}

// matchStopIndex locates the monitored call within the trip's stop sequence,
// by call order first and by stop id equality where no order was delivered.
// Returns -1 when nothing matches.
func matchStopIndex(obs *siri.Observation, trip *gtfs.Trip) int {
	if obs.Call.Order > 0 {
		for i, st := range trip.StopTimes {
			if st.Sequence == obs.Call.Order {
				return i
			}
		}
	}
	if obs.Call.StopRef != "" {
		for i, st := range trip.StopTimes {
			if st.StopID == obs.Call.StopRef {
				return i
			}
		}
	}
	return -1
}

func tripDescriptor(trip *gtfs.Trip) *gtfsrtpb.TripDescriptor {
	return &gtfsrtpb.TripDescriptor{
		TripId:               proto.String(trip.ID),
		RouteId:              proto.String(trip.RouteID),
		DirectionId:          proto.Uint32(trip.DirectionID),
		ScheduleRelationship: gtfsrtpb.TripDescriptor_SCHEDULED.Enum(),
	}
}

func vehicleDescriptor(obs *siri.Observation) *gtfsrtpb.VehicleDescriptor {
	desc := &gtfsrtpb.VehicleDescriptor{Id: proto.String(obs.VehicleRef)}
	if obs.DestinationName != "" {
		desc.Label = proto.String(obs.DestinationName)
	}
	return desc
}

func (p *Projector) buildTripUpdate(obs *siri.Observation, trip *gtfs.Trip, remaining []gtfs.StopTime, delay int32, timestamp uint64, midnight time.Time) *gtfsrtpb.FeedEntity {
	updates := make([]*gtfsrtpb.TripUpdate_StopTimeUpdate, 0, len(remaining))
	for _, st := range remaining {
		update := &gtfsrtpb.TripUpdate_StopTimeUpdate{
			StopSequence:         proto.Uint32(uint32(st.Sequence)),
			StopId:               proto.String(st.StopID),
			Arrival:              stopTimeEvent(st.Arrival, delay, midnight),
			Departure:            stopTimeEvent(st.Departure, delay, midnight),
			ScheduleRelationship: gtfsrtpb.TripUpdate_StopTimeUpdate_SCHEDULED.Enum(),
		}
		updates = append(updates, update)
	}

	return &gtfsrtpb.FeedEntity{
		Id: proto.String(tripUpdateIDPrefix + trip.ID),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip:           tripDescriptor(trip),
			Vehicle:        vehicleDescriptor(obs),
			StopTimeUpdate: updates,
			Timestamp:      proto.Uint64(timestamp),
		},
	}
}

// stopTimeEvent shifts the nominal clock time by the observed delay. When the
// static data carried no time for the field, only the delay is propagated.
func stopTimeEvent(nominal int, delay int32, midnight time.Time) *gtfsrtpb.TripUpdate_StopTimeEvent {
	event := &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: proto.Int32(delay)}
	if nominal >= 0 {
		projected := midnight.Add(time.Duration(nominal)*time.Second + time.Duration(delay)*time.Second)
		event.Time = proto.Int64(projected.Unix())
	}
	return event
}

func (p *Projector) buildVehiclePosition(obs *siri.Observation, trip *gtfs.Trip, remaining []gtfs.StopTime, idx int, stopped bool, timestamp uint64) *gtfsrtpb.FeedEntity {
	position := &gtfsrtpb.Position{
		Latitude:  proto.Float32(float32(obs.Latitude)),
		Longitude: proto.Float32(float32(obs.Longitude)),
	}
	if obs.Bearing != 0 {
		position.Bearing = proto.Float32(float32(obs.Bearing))
	}

	vehicle := &gtfsrtpb.VehiclePosition{
		Trip:      tripDescriptor(trip),
		Vehicle:   vehicleDescriptor(obs),
		Position:  position,
		Timestamp: proto.Uint64(timestamp),
	}

	if stopped {
		vehicle.CurrentStatus = gtfsrtpb.VehiclePosition_STOPPED_AT.Enum()
	} else {
		vehicle.CurrentStatus = gtfsrtpb.VehiclePosition_IN_TRANSIT_TO.Enum()
	}

	if len(remaining) > 0 {
		vehicle.CurrentStopSequence = proto.Uint32(uint32(remaining[0].Sequence))
		vehicle.StopId = proto.String(remaining[0].StopID)
	} else if idx >= 0 {
		vehicle.CurrentStopSequence = proto.Uint32(uint32(trip.StopTimes[idx].Sequence))
		vehicle.StopId = proto.String(trip.StopTimes[idx].StopID)
	}

	return &gtfsrtpb.FeedEntity{
		Id:      proto.String(vehiclePositionIDPrefix + obs.VehicleRef),
		Vehicle: vehicle,
	}
}
