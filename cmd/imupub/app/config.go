package app

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cengaverrover/bno055-telemetry/internal/mqttpub"
	"github.com/cengaverrover/bno055-telemetry/internal/telemetry"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	IMU      IMUConfig     `yaml:"imu"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Storage  StorageConfig `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel LogLevel `yaml:"logLevel"`
}

// IMUConfig represents sensor-related parameters
type IMUConfig struct {
	FrameID string `yaml:"frameId"`
}

// MQTTConfig represents the outbound telemetry channel settings
type MQTTConfig struct {
	Enabled        bool `yaml:"enabled"`
	mqttpub.Config `yaml:",inline"`
}

// StorageConfig represents session recording settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// LogLevel wraps slog.Level with YAML unmarshalling ("debug", "info",
// "warn", "error").
type LogLevel slog.Level

func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value.Value)); err != nil {
		return fmt.Errorf("settings.logLevel: %w", err)
	}

	*l = LogLevel(level)
	return nil
}

// DefaultConfig returns the configuration used when no file is provided:
// publish to a local broker, no recording.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: LogLevel(slog.LevelInfo)},
		IMU:      IMUConfig{FrameID: telemetry.DefaultFrameID},
		MQTT: MQTTConfig{
			Enabled: true,
			Config: mqttpub.Config{
				BrokerURL: "tcp://localhost:1883",
				ClientID:  "bno055-telemetry",
				Topic:     "imu",
			},
		},
	}
}

// LoadConfig reads and validates the YAML configuration file. An empty path
// yields DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration file: %w", err)
	}

	if config.IMU.FrameID == "" {
		config.IMU.FrameID = telemetry.DefaultFrameID
	}
	if config.MQTT.Enabled && config.MQTT.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt.brokerUrl must be set when MQTT is enabled")
	}
	if !config.MQTT.Enabled && !config.Storage.Enabled {
		return nil, fmt.Errorf("no telemetry sinks enabled in configuration")
	}
	return config, nil
}
