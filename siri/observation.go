package siri

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Validation failures for raw activity records. Rejected records are dropped
// one at a time; they never fail a whole delivery.
var (
	ErrNoJourneyRef = errors.New("activity has no dated vehicle journey reference")
	ErrNoLocation   = errors.New("activity has no vehicle location")
	ErrNoCall       = errors.New("activity has no monitored call")
	ErrNoReport     = errors.New("activity reports noReport status")
)

const statusNoReport = "noReport"

// Observation is one validated vehicle-monitoring record. It is ephemeral:
// consumed by the projector and never stored.
type Observation struct {
	VehicleRef      string
	JourneyRef      string
	LineRef         string
	RecordedAt      time.Time
	Latitude        float64
	Longitude       float64
	Bearing         float64
	DestinationRef  string
	DestinationName string

	Call Call
}

// Call describes the observation's current stop call. Zero time values mean
// the corresponding field was absent from the delivery.
type Call struct {
	StopRef  string
	StopName string
	Order    int
	AtStop   bool

	AimedArrival      time.Time
	ExpectedArrival   time.Time
	AimedDeparture    time.Time
	ExpectedDeparture time.Time
}

// NewObservation validates a raw activity record and converts it into an
// Observation. This is the single validation boundary: records missing a
// journey reference, a location or a monitored call, and records whose call
// reports noReport for either arrival or departure, are rejected here.
func NewObservation(activity *VehicleActivity) (*Observation, error) {
	journey := &activity.MonitoredVehicleJourney

	if journey.FramedVehicleJourneyRef.DatedVehicleJourneyRef == "" {
		return nil, ErrNoJourneyRef
	}
	if journey.VehicleLocation == nil {
		return nil, ErrNoLocation
	}
	call := journey.MonitoredCall
	if call == nil {
		return nil, ErrNoCall
	}
	if call.ArrivalStatus == statusNoReport || call.DepartureStatus == statusNoReport {
		return nil, ErrNoReport
	}

	lat, lon := journey.VehicleLocation.Latitude, journey.VehicleLocation.Longitude
	if lat == 0 && lon == 0 {
		var ok bool
		lat, lon, ok = parseCoordinates(journey.VehicleLocation.Coordinates)
		if !ok {
			return nil, ErrNoLocation
		}
	}

	vehicleRef := activity.VehicleMonitoringRef
	if vehicleRef == "" {
		vehicleRef = ParseRef(journey.VehicleRef)
	}

	recordedAt, err := parseTimestamp(activity.RecordedAtTime)
	if err != nil {
		recordedAt = time.Now()
	}

	obs := &Observation{
		VehicleRef:      vehicleRef,
		JourneyRef:      ParseRef(journey.FramedVehicleJourneyRef.DatedVehicleJourneyRef),
		LineRef:         ParseRef(journey.LineRef),
		RecordedAt:      recordedAt,
		Latitude:        lat,
		Longitude:       lon,
		Bearing:         journey.Bearing,
		DestinationRef:  ParseRef(journey.DestinationRef),
		DestinationName: journey.DestinationName,
		Call: Call{
			StopRef:           ParseRef(call.StopPointRef),
			StopName:          call.StopPointName,
			Order:             call.Order,
			AtStop:            call.VehicleAtStop,
			AimedArrival:      parseOptionalTimestamp(call.AimedArrivalTime),
			ExpectedArrival:   parseOptionalTimestamp(call.ExpectedArrivalTime),
			AimedDeparture:    parseOptionalTimestamp(call.AimedDepartureTime),
			ExpectedDeparture: parseOptionalTimestamp(call.ExpectedDepartureTime),
		},
	}
	return obs, nil
}

// ParseRef extracts the value token from a structured SIRI reference of the
// form "CODESPACE:Kind::value:LOC". Plain references pass through untouched.
func ParseRef(ref string) string {
	ref = strings.TrimSpace(ref)
	parts := strings.Split(ref, ":")
	if len(parts) >= 4 && parts[3] != "" {
		return parts[3]
	}
	return ref
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(s))
}

func parseOptionalTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseCoordinates(s string) (lat, lon float64, ok bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(fields[0], 64)
	lon, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
