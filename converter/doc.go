// Package converter matches SIRI vehicle observations against the static
// schedule and projects them into GTFS-Realtime trip-update and
// vehicle-position entities.
package converter
