package gtfs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

// Raw table rows, named after the GTFS column set we consume.

type calendarRow struct {
	ServiceID string `csv:"service_id"`
	Monday    int    `csv:"monday"`
	Tuesday   int    `csv:"tuesday"`
	Wednesday int    `csv:"wednesday"`
	Thursday  int    `csv:"thursday"`
	Friday    int    `csv:"friday"`
	Saturday  int    `csv:"saturday"`
	Sunday    int    `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

type calendarDateRow struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int    `csv:"exception_type"`
}

type tripRow struct {
	ID          string `csv:"trip_id"`
	ServiceID   string `csv:"service_id"`
	RouteID     string `csv:"route_id"`
	DirectionID string `csv:"direction_id"`
}

type stopTimeRow struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  int    `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
}

// Validity range given to services that only exist through calendar_dates
// rows: the service is then active on exactly its explicit inclusion dates.
var (
	syntheticStart = Date{Year: 2000, Month: time.January, Day: 1}
	syntheticEnd   = Date{Year: 2099, Month: time.December, Day: 31}
)

// ImportDirectory builds a Schedule from a directory of GTFS text tables.
// calendar.txt and calendar_dates.txt are optional; trips.txt and
// stop_times.txt are mandatory and unreadable ones fail the import. Rows
// referencing unknown services or trips are dropped without comment.
func ImportDirectory(dir string) (*Schedule, error) {
	// Real-world feeds ship rows with missing trailing columns.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		return r
	})

	schedule := &Schedule{
		Services:   map[string]*Service{},
		Trips:      map[string]*Trip{},
		ImportedAt: time.Now(),
	}

	if err := importServices(dir, schedule); err != nil {
		return nil, err
	}
	if err := importTrips(dir, schedule); err != nil {
		return nil, err
	}

	log.Info().
		Int("services", len(schedule.Services)).
		Int("trips", len(schedule.Trips)).
		Msg("Imported GTFS schedule")

	return schedule, nil
}

func importServices(dir string, schedule *Schedule) error {
	var calendars []calendarRow
	if err := readTable(dir, "calendar.txt", &calendars); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}
	for _, row := range calendars {
		start, err := ParseDate(row.StartDate)
		if err != nil {
			return fmt.Errorf("calendar.txt service %s: %w", row.ServiceID, err)
		}
		end, err := ParseDate(row.EndDate)
		if err != nil {
			return fmt.Errorf("calendar.txt service %s: %w", row.ServiceID, err)
		}
		schedule.Services[row.ServiceID] = &Service{
			ID: row.ServiceID,
			Weekdays: [7]bool{
				row.Monday == 1, row.Tuesday == 1, row.Wednesday == 1,
				row.Thursday == 1, row.Friday == 1, row.Saturday == 1, row.Sunday == 1,
			},
			StartDate: start,
			EndDate:   end,
		}
	}

	var exceptions []calendarDateRow
	if err := readTable(dir, "calendar_dates.txt", &exceptions); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}
	for _, row := range exceptions {
		date, err := ParseDate(row.Date)
		if err != nil {
			return fmt.Errorf("calendar_dates.txt service %s: %w", row.ServiceID, err)
		}

		service := schedule.Services[row.ServiceID]
		if service == nil {
			service = &Service{
				ID:        row.ServiceID,
				StartDate: syntheticStart,
				EndDate:   syntheticEnd,
			}
			schedule.Services[row.ServiceID] = service
		}

		if row.ExceptionType == 1 {
			service.IncludedDays = append(service.IncludedDays, date)
		} else {
			service.ExcludedDays = append(service.ExcludedDays, date)
		}
	}

	return nil
}

func importTrips(dir string, schedule *Schedule) error {
	var trips []tripRow
	if err := readTable(dir, "trips.txt", &trips); err != nil {
		return fmt.Errorf("trips.txt: %w", err)
	}
	for _, row := range trips {
		if _, ok := schedule.Services[row.ServiceID]; !ok {
			continue
		}

		direction, _ := strconv.Atoi(row.DirectionID)
		schedule.Trips[row.ID] = &Trip{
			ID:          row.ID,
			ServiceID:   row.ServiceID,
			RouteID:     row.RouteID,
			DirectionID: uint32(direction),
		}
	}

	var stopTimes []stopTimeRow
	if err := readTable(dir, "stop_times.txt", &stopTimes); err != nil {
		return fmt.Errorf("stop_times.txt: %w", err)
	}
	for _, row := range stopTimes {
		trip, ok := schedule.Trips[row.TripID]
		if !ok {
			continue
		}

		trip.StopTimes = append(trip.StopTimes, StopTime{
			Sequence:  row.StopSequence,
			StopID:    row.StopID,
			Arrival:   parseClock(row.ArrivalTime),
			Departure: parseClock(row.DepartureTime),
		})
	}

	for _, trip := range schedule.Trips {
		sort.Slice(trip.StopTimes, func(i, j int) bool {
			return trip.StopTimes[i].Sequence < trip.StopTimes[j].Sequence
		})
	}

	return nil
}

func readTable(dir, name string, out any) error {
	file, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.Unmarshal(file, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// parseClock converts a GTFS HH:MM:SS clock time into seconds since local
// midnight. Hours beyond 23 are kept as-is so overnight trips stay ordered.
// Returns -1 for absent or malformed values.
func parseClock(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return -1
	}
	return h*3600 + m*60 + sec
}
