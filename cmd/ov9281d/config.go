package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type config struct {
	// Broker is the MQTT broker URL, e.g. tcp://localhost:1883.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	// Topic is the prefix for all of the daemon's MQTT topics.
	Topic string `yaml:"topic"`

	// Bus names the host i2c bus ("" picks the first one). BridgePort
	// selects a serial register bridge instead; "auto" autodetects it.
	Bus        string `yaml:"bus"`
	BridgePort string `yaml:"bridge_port"`
	Addr       uint16 `yaml:"addr"`

	LogLevel string `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		Broker:   "tcp://localhost:1883",
		ClientID: "ov9281d",
		Topic:    "ov9281",
		LogLevel: "info",
	}
}

// loadConfig layers the YAML file (optional) and OV9281D_* environment
// variables over the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if v := os.Getenv("OV9281D_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := os.Getenv("OV9281D_TOPIC"); v != "" {
		cfg.Topic = v
	}
	if v := os.Getenv("OV9281D_BUS"); v != "" {
		cfg.Bus = v
	}

	return cfg, nil
}

func (c config) logLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
}
