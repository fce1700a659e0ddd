package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads, overrides and validates the application configuration. An empty
// path falls back to config.yml in the working directory.
func Load(path string) (*AppConfig, error) {
	paths := []string{path, "config.yml"}
	var data []byte
	var err error
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvironment(&cfg)
	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvironment(cfg *AppConfig) {
	if v := os.Getenv("SIRI_GTFSRT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SIRI_GTFSRT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SIRI_GTFSRT_RESOURCE_URL"); v != "" {
		cfg.GTFS.ResourceURL = v
	}
	if v := os.Getenv("SIRI_GTFSRT_SIRI_ENDPOINT"); v != "" {
		cfg.SIRI.Endpoint = v
	}
	if v := os.Getenv("SIRI_GTFSRT_REQUESTOR_REF"); v != "" {
		cfg.SIRI.RequestorRef = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.GTFS.Timezone == "" {
		cfg.GTFS.Timezone = "Europe/Paris"
	}
	if cfg.GTFS.StalenessIntervalMS == 0 {
		cfg.GTFS.StalenessIntervalMS = 5 * 60 * 1000
	}
	if cfg.GTFS.DownloadTimeoutMS == 0 {
		cfg.GTFS.DownloadTimeoutMS = 30 * 1000
	}
	if cfg.SIRI.RequestorRef == "" {
		cfg.SIRI.RequestorRef = "opendata"
	}
	if cfg.SIRI.RatelimitMS == 0 {
		cfg.SIRI.RatelimitMS = 2500
	}
	if cfg.SIRI.TimeoutMS == 0 {
		cfg.SIRI.TimeoutMS = 30 * 1000
	}
	if cfg.SIRI.LinesRefreshMS == 0 {
		cfg.SIRI.LinesRefreshMS = 2 * 60 * 60 * 1000
	}
	if cfg.Store.SweepIntervalMS == 0 {
		cfg.Store.SweepIntervalMS = 60 * 1000
	}
	if cfg.Store.ThresholdMS == 0 {
		cfg.Store.ThresholdMS = 10 * 60 * 1000
	}
}
