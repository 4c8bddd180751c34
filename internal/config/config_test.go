package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":2112", cfg.HTTPAddr)
	assert.Equal(t, TransportKafka, cfg.Transport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "rider.requests", cfg.Topics.RiderRequest)
	assert.Equal(t, "driver.near_station", cfg.Topics.DriverProximity)
	assert.Equal(t, "trip.updated", cfg.Topics.TripUpdated)
	assert.Equal(t, "match.found", cfg.Topics.MatchFound)
	assert.Equal(t, 5, cfg.DefaultSeats)
	assert.Equal(t, 5*time.Second, cfg.RegistrarTimeout)
	assert.Equal(t, 3*time.Second, cfg.NotifierTimeout)
	assert.False(t, cfg.DedupEnabled)
	assert.False(t, cfg.RejectDuplicateRiders)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("DEFAULT_SEATS", "3")
	t.Setenv("TOPICS_MATCH_FOUND", "matches")
	t.Setenv("DEDUP_ENABLED", "true")
	t.Setenv("DEDUP_TTL", "1m")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.DefaultSeats)
	assert.Equal(t, "matches", cfg.Topics.MatchFound)
	assert.True(t, cfg.DedupEnabled)
	assert.Equal(t, time.Minute, cfg.DedupTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadKeepsZeroDefaultSeats(t *testing.T) {
	t.Setenv("MATCHING_DEFAULT_SEATS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.DefaultSeats)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matching.yaml")
	body := "transport:\n  kind: memory\nmatching:\n  default_seats: 4\nnotifier:\n  url: http://notify:8080\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportMemory, cfg.Transport)
	assert.Equal(t, 4, cfg.DefaultSeats)
	assert.Equal(t, "http://notify:8080", cfg.NotifierURL)
}

func TestLoadCollectsErrors(t *testing.T) {
	t.Setenv("TRANSPORT_KIND", "carrier-pigeon")
	t.Setenv("REGISTRAR_TIMEOUT", "soon")
	t.Setenv("MATCHING_DEFAULT_SEATS", "-1")
	t.Setenv("REGISTRAR_URL", "http://trips")
	t.Setenv("REGISTRAR_PG_DSN", "postgres://x")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown TRANSPORT_KIND")
	assert.Contains(t, msg, "invalid REGISTRAR_TIMEOUT")
	assert.Contains(t, msg, "MATCHING_DEFAULT_SEATS must be >= 0")
	assert.Contains(t, msg, "set only one of REGISTRAR_URL and REGISTRAR_PG_DSN")
}
