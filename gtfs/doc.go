// Package gtfs holds the static schedule model: services, trips and stop
// sequences imported from a GTFS resource, the operating-day resolver that
// decides which of them are active on a given date, and the refresh controller
// that keeps the imported schedule current without interrupting readers.
package gtfs
