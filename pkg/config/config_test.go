package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  username: user@example.com
  password: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://app.api.surehub.io", cfg.API.Host)
	assert.Equal(t, 120*time.Second, cfg.API.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 60*time.Second, cfg.Poll.ReconnectDelay)
	assert.Equal(t, 60*time.Second, cfg.Poll.HistoryEvery)
	assert.Equal(t, "sureflap", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, 5.1, cfg.Battery.Flap.Empty)
	assert.Equal(t, 6.1, cfg.Battery.Flap.Full)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Influx.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  username: user@example.com
  password: secret
poll:
  interval: 30s
mqtt:
  broker: tcp://broker.local:1883
  topic_prefix: pets
timezone: Europe/Berlin
log:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "pets", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SUREFLAP_API_PASSWORD", "from-env")

	path := writeConfig(t, `
api:
  username: user@example.com
  password: from-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.API.Password)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing credentials", `
api:
  username: user@example.com
`},
		{"interval too small", `
api:
  username: u
  password: p
poll:
  interval: 100ms
`},
		{"invalid qos", `
api:
  username: u
  password: p
mqtt:
  qos: 3
`},
		{"inverted voltage range", `
api:
  username: u
  password: p
battery:
  flap:
    empty: 6.5
    full: 6.0
`},
		{"bad log level", `
api:
  username: u
  password: p
log:
  level: verbose
`},
		{"influx enabled without url", `
api:
  username: u
  password: p
influx:
  enabled: true
`},
		{"bad timezone", `
api:
  username: u
  password: p
timezone: Mars/Olympus
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, WriteExample(path))

	// The example must not validate as-is (placeholder credentials are
	// fine), but it must parse.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "surehub.io")
}

func TestLocationDefaultsToLocal(t *testing.T) {
	cfg := &Config{}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
