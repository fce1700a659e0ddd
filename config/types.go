package config

import "time"

// ServerConfig contains feed server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// MetricsConfig contains the Prometheus listener configuration; an empty
// address disables the listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// GTFSConfig describes the static schedule resource
type GTFSConfig struct {
	ResourceURL         string `yaml:"resourceURL" validate:"required,url"`
	Timezone            string `yaml:"timezone"`
	StalenessIntervalMS int    `yaml:"stalenessIntervalMS" validate:"gte=0"`
	DownloadTimeoutMS   int    `yaml:"downloadTimeoutMS" validate:"gte=0"`
}

// SIRIConfig describes the upstream vehicle-monitoring service
type SIRIConfig struct {
	Endpoint       string `yaml:"endpoint" validate:"required,url"`
	RequestorRef   string `yaml:"requestorRef"`
	RatelimitMS    int    `yaml:"ratelimitMS" validate:"gte=0"`
	TimeoutMS      int    `yaml:"timeoutMS" validate:"gte=0"`
	LinesRefreshMS int    `yaml:"linesRefreshMS" validate:"gte=0"`
}

// StoreConfig controls entity eviction
type StoreConfig struct {
	SweepIntervalMS int `yaml:"sweepIntervalMS" validate:"gte=0"`
	ThresholdMS     int `yaml:"thresholdMS" validate:"gte=0"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	GTFS    GTFSConfig    `yaml:"gtfs" validate:"required"`
	SIRI    SIRIConfig    `yaml:"siri" validate:"required"`
	Store   StoreConfig   `yaml:"store"`
}

// Duration accessors so callers never juggle raw millisecond ints.

func (c GTFSConfig) StalenessInterval() time.Duration {
	return time.Duration(c.StalenessIntervalMS) * time.Millisecond
}

func (c GTFSConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutMS) * time.Millisecond
}

func (c SIRIConfig) Ratelimit() time.Duration {
	return time.Duration(c.RatelimitMS) * time.Millisecond
}

func (c SIRIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c SIRIConfig) LinesRefresh() time.Duration {
	return time.Duration(c.LinesRefreshMS) * time.Millisecond
}

func (c StoreConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

func (c StoreConfig) Threshold() time.Duration {
	return time.Duration(c.ThresholdMS) * time.Millisecond
}
