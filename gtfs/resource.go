package gtfs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ResourceState is the refresh controller's externally visible state.
type ResourceState int32

const (
	ResourceFresh ResourceState = iota
	ResourceChecking
)

func (s ResourceState) String() string {
	if s == ResourceChecking {
		return "CHECKING"
	}
	return "FRESH"
}

// OperatingSet is the derived view of which services and routes are active on
// the current operating date. Recomputed at startup, at the daily rollover and
// whenever the schedule is replaced; never mutated in place.
type OperatingSet struct {
	Date     Date
	Services map[string]*Service
	Routes   []string
}

// Resource owns the single writable reference to the current schedule and
// keeps it fresh: a periodic staleness probe against the canonical resource
// location, and a daily rollover of the operating set at 03:00 local time.
// Readers always get a consistent snapshot, never the mutable slot.
type Resource struct {
	downloader        *Downloader
	location          *time.Location
	stalenessInterval time.Duration

	schedule  atomic.Pointer[Schedule]
	operating atomic.Pointer[OperatingSet]
	state     atomic.Int32
}

func NewResource(downloader *Downloader, location *time.Location, stalenessInterval time.Duration) *Resource {
	return &Resource{
		downloader:        downloader,
		location:          location,
		stalenessInterval: stalenessInterval,
	}
}

// LoadInitial performs the first download and import. There is no previous
// schedule to fall back to, so a failure here is fatal to the caller.
func (r *Resource) LoadInitial(ctx context.Context) error {
	schedule, err := r.downloader.Load(ctx)
	if err != nil {
		return err
	}
	r.swap(schedule)
	return nil
}

// Schedule returns the current schedule snapshot.
func (r *Resource) Schedule() *Schedule {
	return r.schedule.Load()
}

// Operating returns the current operating-set snapshot.
func (r *Resource) Operating() *OperatingSet {
	return r.operating.Load()
}

// State reports whether the controller is between probes or mid-check.
func (r *Resource) State() ResourceState {
	return ResourceState(r.state.Load())
}

func (r *Resource) swap(schedule *Schedule) {
	r.schedule.Store(schedule)
	r.recomputeOperating()
}

func (r *Resource) recomputeOperating() {
	schedule := r.schedule.Load()
	date := OperatingDate(time.Now(), r.location)

	set := &OperatingSet{
		Date:     date,
		Services: OperatingServices(schedule, date),
		Routes:   OperatingRoutes(schedule, date),
	}
	r.operating.Store(set)

	log.Info().
		Str("date", date.String()).
		Int("services", len(set.Services)).
		Int("routes", len(set.Routes)).
		Msg("Recomputed operating set")
}

// RunStalenessLoop probes the resource location on a fixed interval and
// replaces the schedule when its Last-Modified marker changes. Probe and
// reload failures keep the previous schedule in force.
func (r *Resource) RunStalenessLoop(ctx context.Context) {
	ticker := time.NewTicker(r.stalenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkOnce(ctx)
		}
	}
}

func (r *Resource) checkOnce(ctx context.Context) {
	r.state.Store(int32(ResourceChecking))
	defer r.state.Store(int32(ResourceFresh))

	lastModified, err := r.downloader.Probe(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("GTFS staleness probe failed, keeping current schedule")
		return
	}

	if lastModified == r.schedule.Load().LastModified {
		log.Debug().Msg("GTFS resource is up-to-date")
		return
	}

	log.Info().Str("lastModified", lastModified).Msg("GTFS resource is stale, reloading")

	schedule, err := r.downloader.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("GTFS reload failed, keeping current schedule")
		return
	}
	r.swap(schedule)
}

// RunRolloverLoop recomputes the operating set from the current schedule once
// per day at 03:00 local time, rolling the operating date over even when the
// schedule itself did not change.
func (r *Resource) RunRolloverLoop(ctx context.Context) {
	for {
		timer := time.NewTimer(time.Until(r.nextRollover(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.recomputeOperating()
		}
	}
}

func (r *Resource) nextRollover(now time.Time) time.Time {
	local := now.In(r.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), 3, 0, 0, 0, r.location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
