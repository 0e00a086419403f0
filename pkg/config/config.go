package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt" mapstructure:"mqtt"`
	Poll     PollConfig     `yaml:"poll" mapstructure:"poll"`
	Battery  BatteryConfig  `yaml:"battery" mapstructure:"battery"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Influx   InfluxConfig   `yaml:"influx" mapstructure:"influx"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	// Timezone for curfew display times and "today" boundaries.
	// Empty means the system local zone.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// APIConfig holds Sure Petcare cloud credentials and transport limits.
type APIConfig struct {
	Host     string        `yaml:"host" mapstructure:"host"`
	Username string        `yaml:"username" mapstructure:"username"`
	Password string        `yaml:"password" mapstructure:"password"`
	DeviceID string        `yaml:"device_id" mapstructure:"device_id"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MQTTConfig holds broker settings for the state store mirror.
type MQTTConfig struct {
	Broker      string `yaml:"broker" mapstructure:"broker"`
	ClientID    string `yaml:"client_id" mapstructure:"client_id"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	QoS         int    `yaml:"qos" mapstructure:"qos"`
	TopicPrefix string `yaml:"topic_prefix" mapstructure:"topic_prefix"`
}

// PollConfig holds the orchestrator's timing knobs.
type PollConfig struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay"`
	HistoryEvery   time.Duration `yaml:"history_every" mapstructure:"history_every"`
	ReportEvery    time.Duration `yaml:"report_every" mapstructure:"report_every"`
}

// VoltageRange is an empty/full voltage pair for battery interpolation.
type VoltageRange struct {
	Empty float64 `yaml:"empty" mapstructure:"empty"`
	Full  float64 `yaml:"full" mapstructure:"full"`
}

// BatteryConfig holds per-device-type voltage ranges.
type BatteryConfig struct {
	Flap      VoltageRange `yaml:"flap" mapstructure:"flap"`
	Feeder    VoltageRange `yaml:"feeder" mapstructure:"feeder"`
	Dispenser VoltageRange `yaml:"dispenser" mapstructure:"dispenser"`
}

// DatabaseConfig holds the sqlite path for curfew replay and fetch offsets.
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// InfluxConfig holds the optional derived-metrics sink settings.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	URL     string `yaml:"url" mapstructure:"url"`
	Token   string `yaml:"token" mapstructure:"token"`
	Org     string `yaml:"org" mapstructure:"org"`
	Bucket  string `yaml:"bucket" mapstructure:"bucket"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from the given YAML file, with environment
// overrides under the SUREFLAP_ prefix (e.g. SUREFLAP_API_PASSWORD).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("SUREFLAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "https://app.api.surehub.io")
	v.SetDefault("api.timeout", 120*time.Second)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "sureflap-sync")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.topic_prefix", "sureflap")
	v.SetDefault("poll.interval", 10*time.Second)
	v.SetDefault("poll.reconnect_delay", 60*time.Second)
	v.SetDefault("poll.history_every", 60*time.Second)
	v.SetDefault("poll.report_every", 60*time.Second)
	v.SetDefault("battery.flap.empty", 5.1)
	v.SetDefault("battery.flap.full", 6.1)
	v.SetDefault("battery.feeder.empty", 5.2)
	v.SetDefault("battery.feeder.full", 6.2)
	v.SetDefault("battery.dispenser.empty", 5.2)
	v.SetDefault("battery.dispenser.full", 6.2)
	v.SetDefault("database.path", "sureflap.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func validate(cfg *Config) error {
	if cfg.API.Username == "" || cfg.API.Password == "" {
		return fmt.Errorf("api.username and api.password are required")
	}
	if cfg.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s")
	}
	if cfg.Poll.ReconnectDelay < time.Second {
		return fmt.Errorf("poll.reconnect_delay must be at least 1s")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	for _, r := range []struct {
		name string
		VoltageRange
	}{
		{"battery.flap", cfg.Battery.Flap},
		{"battery.feeder", cfg.Battery.Feeder},
		{"battery.dispenser", cfg.Battery.Dispenser},
	} {
		if r.Full <= r.Empty {
			return fmt.Errorf("%s: full voltage must exceed empty voltage", r.name)
		}
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log.level %q, must be one of: debug, info, warn, error", cfg.Log.Level)
	}
	if cfg.Influx.Enabled && (cfg.Influx.URL == "" || cfg.Influx.Bucket == "") {
		return fmt.Errorf("influx.url and influx.bucket are required when influx is enabled")
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}
	return nil
}

// Location resolves the configured timezone, defaulting to the system
// local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// WriteExample writes a starter configuration to path.
func WriteExample(path string) error {
	cfg := Config{
		API: APIConfig{
			Host:     "https://app.api.surehub.io",
			Username: "you@example.com",
			Password: "${SUREFLAP_API_PASSWORD}",
			Timeout:  120 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "sureflap-sync",
			QoS:         1,
			TopicPrefix: "sureflap",
		},
		Poll: PollConfig{
			Interval:       10 * time.Second,
			ReconnectDelay: 60 * time.Second,
			HistoryEvery:   60 * time.Second,
			ReportEvery:    60 * time.Second,
		},
		Battery: BatteryConfig{
			Flap:      VoltageRange{Empty: 5.1, Full: 6.1},
			Feeder:    VoltageRange{Empty: 5.2, Full: 6.2},
			Dispenser: VoltageRange{Empty: 5.2, Full: 6.2},
		},
		Database: DatabaseConfig{Path: "sureflap.db"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling example config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing example config: %w", err)
	}

	return nil
}
