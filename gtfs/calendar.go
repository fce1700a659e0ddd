package gtfs

import (
	"sort"
	"time"
)

// ActiveOn reports whether the service operates on the given date. Explicit
// exceptions override both the validity range and the weekly pattern, and
// inclusion is checked before exclusion so a date listed in both resolves to
// active.
func (s *Service) ActiveOn(date Date) bool {
	for _, d := range s.IncludedDays {
		if d.Equal(date) {
			return true
		}
	}
	for _, d := range s.ExcludedDays {
		if d.Equal(date) {
			return false
		}
	}
	if date.Before(s.StartDate) || date.After(s.EndDate) {
		return false
	}
	return s.Weekdays[date.WeekdayIndex()]
}

// OperatingServices returns the services active on the given date, keyed by id.
func OperatingServices(schedule *Schedule, date Date) map[string]*Service {
	operating := map[string]*Service{}
	for id, service := range schedule.Services {
		if service.ActiveOn(date) {
			operating[id] = service
		}
	}
	return operating
}

// OperatingRoutes returns the sorted, de-duplicated route ids reachable from
// trips whose service is active on the given date.
func OperatingRoutes(schedule *Schedule, date Date) []string {
	operating := OperatingServices(schedule, date)

	seen := map[string]struct{}{}
	for _, trip := range schedule.Trips {
		if _, ok := operating[trip.ServiceID]; !ok {
			continue
		}
		seen[trip.RouteID] = struct{}{}
	}

	routes := make([]string, 0, len(seen))
	for route := range seen {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

// OperatingDate resolves the operating date in effect at the given instant:
// the local calendar day, except before 03:00 where overnight services still
// count against the previous day.
func OperatingDate(now time.Time, loc *time.Location) Date {
	local := now.In(loc)
	date := DateOf(local)
	if local.Hour() < 3 {
		date = date.AddDays(-1)
	}
	return date
}
