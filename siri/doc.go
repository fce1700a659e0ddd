// Package siri talks to the transit operator's SIRI web service: per-line
// vehicle-monitoring requests, monitored-lines discovery, and the conversion
// of raw SIRI-VM activity records into validated vehicle observations.
package siri
