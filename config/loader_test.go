package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
gtfs:
  resourceURL: https://example.com/gtfs.zip
siri:
  endpoint: https://example.com/siri
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "Europe/Paris", cfg.GTFS.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.GTFS.StalenessInterval())
	assert.Equal(t, 30*time.Second, cfg.GTFS.DownloadTimeout())
	assert.Equal(t, "opendata", cfg.SIRI.RequestorRef)
	assert.Equal(t, 2500*time.Millisecond, cfg.SIRI.Ratelimit())
	assert.Equal(t, 2*time.Hour, cfg.SIRI.LinesRefresh())
	assert.Equal(t, time.Minute, cfg.Store.SweepInterval())
	assert.Equal(t, 10*time.Minute, cfg.Store.Threshold())
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 8080
metrics:
  addr: :9091
gtfs:
  resourceURL: https://example.com/gtfs.zip
  timezone: Europe/Sofia
  stalenessIntervalMS: 60000
siri:
  endpoint: https://example.com/siri
  requestorRef: myref
  ratelimitMS: 5000
store:
  thresholdMS: 120000
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":9091", cfg.Metrics.Addr)
	assert.Equal(t, "Europe/Sofia", cfg.GTFS.Timezone)
	assert.Equal(t, time.Minute, cfg.GTFS.StalenessInterval())
	assert.Equal(t, "myref", cfg.SIRI.RequestorRef)
	assert.Equal(t, 5*time.Second, cfg.SIRI.Ratelimit())
	assert.Equal(t, 2*time.Minute, cfg.Store.Threshold())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SIRI_GTFSRT_PORT", "9999")
	t.Setenv("SIRI_GTFSRT_RESOURCE_URL", "https://override.example.com/gtfs.zip")
	t.Setenv("SIRI_GTFSRT_REQUESTOR_REF", "envref")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "https://override.example.com/gtfs.zip", cfg.GTFS.ResourceURL)
	assert.Equal(t, "envref", cfg.SIRI.RequestorRef)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing gtfs resource", "siri:\n  endpoint: https://example.com/siri\n"},
		{"missing siri endpoint", "gtfs:\n  resourceURL: https://example.com/gtfs.zip\n"},
		{"malformed resource url", "gtfs:\n  resourceURL: not-a-url\nsiri:\n  endpoint: https://example.com/siri\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
