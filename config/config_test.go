package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 10, cfg.Limits.MaxActiveOrganizedRaces)
	assert.Equal(t, 1000, cfg.Limits.MaxJoinedRaces)
	assert.Equal(t, 500, cfg.Limits.MaxParticipantsPerRace)
	assert.Equal(t, "https://www.strava.com/oauth/token", cfg.Strava.TokenURL)
	assert.Equal(t, "race-events", cfg.MQ.Channel)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server_port: 9000
limits:
  max_active_organized_races: 3
strava:
  client_id: "1234"
  http_timeout: 5s
storage:
  provider: minio
  minio:
    bucket: evidence
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("MAX_JOINED_RACES", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.ServerPort)
	assert.Equal(t, 3, cfg.Limits.MaxActiveOrganizedRaces)
	assert.Equal(t, 7, cfg.Limits.MaxJoinedRaces)
	assert.Equal(t, 500, cfg.Limits.MaxParticipantsPerRace)
	assert.Equal(t, "1234", cfg.Strava.ClientID)
	assert.Equal(t, 5*time.Second, cfg.Strava.HTTPTimeout)
	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, "evidence", cfg.Storage.Minio.Bucket)
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MQ_PROVIDER", "kafka")

	_, err := LoadConfig()
	assert.Error(t, err)
}
