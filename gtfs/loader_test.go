package gtfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, "calendar.txt",
		"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n"+
			"WEEK,1,1,1,1,1,0,0,20240101,20241231\n")
	writeFixture(t, dir, "calendar_dates.txt",
		"service_id,date,exception_type\n"+
			"WEEK,20240308,2\n"+
			"EXTRA,20240317,1\n")
	writeFixture(t, dir, "trips.txt",
		"route_id,service_id,trip_id,direction_id\n"+
			"12,WEEK,12-morning,0\n"+
			"12,WEEK,12-evening,1\n"+
			"99,GHOST,ghost-trip,0\n")
	writeFixture(t, dir, "stop_times.txt",
		"trip_id,arrival_time,departure_time,stop_id,stop_sequence\n"+
			"12-morning,08:10:00,08:11:00,STOP-B,2\n"+
			"12-morning,08:00:00,08:01:00,STOP-A,1\n"+
			"12-morning,,08:20:00,STOP-C,3\n"+
			"unknown-trip,09:00:00,09:00:00,STOP-X,1\n")
	return dir
}

func TestImportDirectory(t *testing.T) {
	schedule, err := ImportDirectory(fixtureDir(t))
	require.NoError(t, err)

	week := schedule.Services["WEEK"]
	require.NotNil(t, week)
	assert.Equal(t, [7]bool{true, true, true, true, true, false, false}, week.Weekdays)
	require.Len(t, week.ExcludedDays, 1)
	assert.Equal(t, "2024-03-08", week.ExcludedDays[0].String())

	trip := schedule.Trips["12-morning"]
	require.NotNil(t, trip)
	assert.Equal(t, "12", trip.RouteID)
	assert.Equal(t, uint32(0), trip.DirectionID)

	require.Len(t, trip.StopTimes, 3)
	assert.Equal(t, "STOP-A", trip.StopTimes[0].StopID, "stop times sorted by sequence")
	assert.Equal(t, 8*3600, trip.StopTimes[0].Arrival)
	assert.Equal(t, 8*3600+60, trip.StopTimes[0].Departure)
	assert.Equal(t, -1, trip.StopTimes[2].Arrival, "absent clock value kept as sentinel")
}

func TestImportDirectory_SyntheticService(t *testing.T) {
	schedule, err := ImportDirectory(fixtureDir(t))
	require.NoError(t, err)

	extra := schedule.Services["EXTRA"]
	require.NotNil(t, extra, "service defined only by calendar_dates rows")
	assert.Equal(t, [7]bool{}, extra.Weekdays)
	assert.True(t, extra.ActiveOn(Date{Year: 2024, Month: 3, Day: 17}))
	assert.False(t, extra.ActiveOn(Date{Year: 2024, Month: 3, Day: 18}))
}

func TestImportDirectory_DropsUnknownRefs(t *testing.T) {
	schedule, err := ImportDirectory(fixtureDir(t))
	require.NoError(t, err)

	assert.NotContains(t, schedule.Trips, "ghost-trip", "trip with unknown service dropped")
	for _, trip := range schedule.Trips {
		for _, st := range trip.StopTimes {
			assert.NotEqual(t, "STOP-X", st.StopID, "stop time for unknown trip dropped")
		}
	}
}

func TestImportDirectory_MissingCalendarTolerated(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "calendar_dates.txt",
		"service_id,date,exception_type\nONLY,20240317,1\n")
	writeFixture(t, dir, "trips.txt",
		"route_id,service_id,trip_id,direction_id\n7,ONLY,7-a,0\n")
	writeFixture(t, dir, "stop_times.txt",
		"trip_id,arrival_time,departure_time,stop_id,stop_sequence\n7-a,10:00:00,10:00:00,S1,1\n")

	schedule, err := ImportDirectory(dir)
	require.NoError(t, err)
	assert.Len(t, schedule.Services, 1)
	assert.Len(t, schedule.Trips, 1)
}

func TestImportDirectory_MissingTripsFails(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "stop_times.txt", "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n")

	_, err := ImportDirectory(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trips.txt")
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00:00", 0},
		{"08:01:30", 8*3600 + 90},
		{"25:15:00", 25*3600 + 15*60},
		{"", -1},
		{"8:00", -1},
		{"aa:bb:cc", -1},
		{"08:61:00", -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseClock(tt.in), tt.in)
	}
}
