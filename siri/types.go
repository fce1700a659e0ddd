package siri

// Wire types for the SIRI-VM service delivery. Element names follow the SIRI
// schema; namespaces are ignored on decode so the same structs work for the
// bare and the SOAP-wrapped producer variants.

type VehicleActivity struct {
	RecordedAtTime       string
	ValidUntilTime       string
	ItemIdentifier       string
	VehicleMonitoringRef string

	MonitoredVehicleJourney MonitoredVehicleJourney
}

type MonitoredVehicleJourney struct {
	LineRef           string
	DirectionRef      string
	DirectionName     string
	PublishedLineName string

	FramedVehicleJourneyRef struct {
		DataFrameRef           string
		DatedVehicleJourneyRef string
	}

	OperatorRef string

	OriginRef  string
	OriginName string

	DestinationRef  string
	DestinationName string

	Monitored bool

	VehicleLocation *VehicleLocation
	Bearing         float64

	VehicleRef string

	MonitoredCall *MonitoredCall
}

type VehicleLocation struct {
	Longitude float64
	Latitude  float64

	// Some producers emit a single gml-style "lat lon" pair instead of the
	// two discrete fields.
	Coordinates string
}

type MonitoredCall struct {
	StopPointRef  string
	StopPointName string
	Order         int
	VehicleAtStop bool

	DestinationDisplay string

	AimedArrivalTime    string
	ExpectedArrivalTime string
	ArrivalStatus       string

	AimedDepartureTime    string
	ExpectedDepartureTime string
	DepartureStatus       string
}

// AnnotatedLineRef is one entry of a lines-discovery delivery.
type AnnotatedLineRef struct {
	LineRef   string
	LineName  string
	Monitored bool
}
