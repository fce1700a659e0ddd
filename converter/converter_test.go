package converter

import (
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/gtfs"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/siri"
)

var paris = mustLocation("Europe/Paris")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// fixtureSchedule builds a ten stop trip keyed "WEEK12-morning" on route 12,
// departing 09:45 and arriving 10:30 local.
func fixtureSchedule() (*gtfs.Schedule, *gtfs.OperatingSet) {
	stopTimes := make([]gtfs.StopTime, 0, 10)
	for i := 0; i < 10; i++ {
		clock := 9*3600 + 45*60 + i*300
		stopTimes = append(stopTimes, gtfs.StopTime{
			Sequence:  i + 1,
			StopID:    "STOP-" + string(rune('A'+i)),
			Arrival:   clock,
			Departure: clock + 30,
		})
	}

	week := &gtfs.Service{ID: "WEEK"}
	trip := &gtfs.Trip{
		ID:        "WEEK12-morning",
		ServiceID: "WEEK",
		RouteID:   "12",
		StopTimes: stopTimes,
	}

	schedule := &gtfs.Schedule{
		Services: map[string]*gtfs.Service{"WEEK": week},
		Trips:    map[string]*gtfs.Trip{trip.ID: trip},
	}
	operating := &gtfs.OperatingSet{
		Date:     gtfs.Date{Year: 2024, Month: time.March, Day: 15},
		Services: map[string]*gtfs.Service{"WEEK": week},
		Routes:   []string{"12"},
	}
	return schedule, operating
}

func fixtureObservation() *siri.Observation {
	recorded := time.Date(2024, 3, 15, 9, 58, 30, 0, paris)
	return &siri.Observation{
		VehicleRef:     "bus-204",
		JourneyRef:     "12-morning",
		LineRef:        "12",
		RecordedAt:     recorded,
		Latitude:       49.1829,
		Longitude:      -0.3707,
		Bearing:        135,
		DestinationRef: "STOP-J",
		Call: siri.Call{
			StopRef:         "STOP-E",
			Order:           4,
			AimedArrival:    time.Date(2024, 3, 15, 10, 0, 0, 0, paris),
			ExpectedArrival: time.Date(2024, 3, 15, 10, 3, 30, 0, paris),
		},
	}
}

func TestProject_DelayedVehicle(t *testing.T) {
	schedule, operating := fixtureSchedule()
	projector := NewProjector(paris)

	entities, err := projector.Project(fixtureObservation(), schedule, operating)
	require.NoError(t, err)

	assert.Equal(t, "WEEK12-morning", entities.TripID)
	assert.Equal(t, "bus-204", entities.VehicleRef)

	require.NotNil(t, entities.TripUpdate)
	assert.Equal(t, "SM:WEEK12-morning", entities.TripUpdate.GetId())

	tu := entities.TripUpdate.GetTripUpdate()
	assert.Equal(t, "WEEK12-morning", tu.GetTrip().GetTripId())
	assert.Equal(t, "12", tu.GetTrip().GetRouteId())
	assert.Equal(t, uint64(fixtureObservation().RecordedAt.Unix()), tu.GetTimestamp())

	// Order 4 matched, not at stop, so stops 5 through 10 remain.
	updates := tu.GetStopTimeUpdate()
	require.Len(t, updates, 6)
	assert.Equal(t, uint32(5), updates[0].GetStopSequence())
	assert.Equal(t, uint32(10), updates[5].GetStopSequence())

	for _, update := range updates {
		assert.Equal(t, int32(210), update.GetArrival().GetDelay())
		assert.Equal(t, int32(210), update.GetDeparture().GetDelay())
	}

	// First remaining stop departs 10:05:30 nominal, so 10:09:00 projected.
	wantDeparture := time.Date(2024, 3, 15, 10, 9, 0, 0, paris).Unix()
	assert.Equal(t, wantDeparture, updates[0].GetDeparture().GetTime())

	require.NotNil(t, entities.VehiclePosition)
	vp := entities.VehiclePosition.GetVehicle()
	assert.Equal(t, "VM:bus-204", entities.VehiclePosition.GetId())
	assert.Equal(t, gtfsrtpb.VehiclePosition_IN_TRANSIT_TO, vp.GetCurrentStatus())
	assert.Equal(t, uint32(5), vp.GetCurrentStopSequence())
	assert.Equal(t, "STOP-E", vp.GetStopId())
	assert.InDelta(t, 49.1829, float64(vp.GetPosition().GetLatitude()), 0.0001)
	assert.InDelta(t, 135, float64(vp.GetPosition().GetBearing()), 0.001)
}

func TestProject_EarlyVehicle(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.Call.ExpectedArrival = obs.Call.AimedArrival.Add(-90 * time.Second)

	entities, err := NewProjector(paris).Project(obs, schedule, operating)
	require.NoError(t, err)

	updates := entities.TripUpdate.GetTripUpdate().GetStopTimeUpdate()
	require.NotEmpty(t, updates)
	assert.Equal(t, int32(-90), updates[0].GetArrival().GetDelay())
}

func TestProject_DeparturePairPreferred(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.Call.AimedDeparture = time.Date(2024, 3, 15, 10, 0, 30, 0, paris)
	obs.Call.ExpectedDeparture = time.Date(2024, 3, 15, 10, 1, 30, 0, paris)

	entities, err := NewProjector(paris).Project(obs, schedule, operating)
	require.NoError(t, err)

	updates := entities.TripUpdate.GetTripUpdate().GetStopTimeUpdate()
	require.NotEmpty(t, updates)
	assert.Equal(t, int32(60), updates[0].GetArrival().GetDelay())
}

func TestProject_NoTimePair(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.Call.AimedArrival = time.Time{}
	obs.Call.ExpectedArrival = time.Time{}

	entities, err := NewProjector(paris).Project(obs, schedule, operating)
	require.NoError(t, err)

	assert.Nil(t, entities.TripUpdate, "no delay measurement means no trip update")
	assert.NotNil(t, entities.VehiclePosition, "the position is still worth publishing")
}

func TestProject_Unmatched(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.JourneyRef = "99-unknown"

	_, err := NewProjector(paris).Project(obs, schedule, operating)
	assert.ErrorIs(t, err, ErrUnmatched)
}

func TestProject_StoppedAtFlag(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.Call.AtStop = true

	entities, err := NewProjector(paris).Project(obs, schedule, operating)
	require.NoError(t, err)

	vp := entities.VehiclePosition.GetVehicle()
	assert.Equal(t, gtfsrtpb.VehiclePosition_STOPPED_AT, vp.GetCurrentStatus())
	assert.Equal(t, uint32(4), vp.GetCurrentStopSequence(), "current stop stays in the remaining slice while stopped")
	assert.Equal(t, "STOP-D", vp.GetStopId())

	updates := entities.TripUpdate.GetTripUpdate().GetStopTimeUpdate()
	require.Len(t, updates, 7, "stopped vehicles keep the current stop in the update")
	assert.Equal(t, uint32(4), updates[0].GetStopSequence())
}

func TestProject_StoppedAtTerminus(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.Call.Order = 10
	obs.Call.StopRef = "STOP-J"

	entities, err := NewProjector(paris).Project(obs, schedule, operating)
	require.NoError(t, err)

	// The terminus stop matches DestinationRef, so the vehicle counts as
	// stopped even without the at-stop flag.
	vp := entities.VehiclePosition.GetVehicle()
	assert.Equal(t, gtfsrtpb.VehiclePosition_STOPPED_AT, vp.GetCurrentStatus())
	assert.Equal(t, "STOP-J", vp.GetStopId())
}

func TestProject_StopRefFallback(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.Call.Order = 0

	entities, err := NewProjector(paris).Project(obs, schedule, operating)
	require.NoError(t, err)

	vp := entities.VehiclePosition.GetVehicle()
	assert.Equal(t, uint32(6), vp.GetCurrentStopSequence(), "matched by stop id STOP-E at sequence 5")
}

func TestProject_UnmatchedCall(t *testing.T) {
	schedule, operating := fixtureSchedule()
	obs := fixtureObservation()
	obs.Call.Order = 99
	obs.Call.StopRef = "STOP-UNKNOWN"

	entities, err := NewProjector(paris).Project(obs, schedule, operating)
	require.NoError(t, err)

	// Without a stop match the delay cannot be anchored, so it collapses to
	// zero and no per-stop updates are emitted.
	tu := entities.TripUpdate.GetTripUpdate()
	assert.Empty(t, tu.GetStopTimeUpdate())

	vp := entities.VehiclePosition.GetVehicle()
	assert.Nil(t, vp.StopId)
	assert.Nil(t, vp.CurrentStopSequence)
}
