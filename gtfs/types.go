package gtfs

import "time"

// Service is a named operating-day calendar: a Monday-first weekday pattern, a
// validity range and explicit inclusion/exclusion dates from calendar_dates.
// Services are built once during import and never mutated afterwards.
type Service struct {
	ID           string
	Weekdays     [7]bool // Monday-first
	StartDate    Date
	EndDate      Date
	IncludedDays []Date
	ExcludedDays []Date
}

// StopTime is one positional entry of a trip's stop sequence. Arrival and
// Departure are scheduled clock times in seconds since local midnight (values
// above 24h are valid for overnight trips); -1 means the static data carried
// no time for that field.
type StopTime struct {
	Sequence  int
	StopID    string
	Arrival   int
	Departure int
}

// Trip belongs to exactly one service and carries its stop sequence sorted
// ascending by sequence number.
type Trip struct {
	ID          string
	ServiceID   string
	RouteID     string
	DirectionID uint32
	StopTimes   []StopTime
}

// Schedule is the aggregate of all services and trips from one static
// resource import. It is replaced atomically as a unit and never mutated
// field-by-field after construction.
type Schedule struct {
	Services map[string]*Service
	Trips    map[string]*Trip

	LastModified string
	ImportedAt   time.Time
}
