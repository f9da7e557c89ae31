/*
Copyright 2024 SerialLink Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config provides configuration loading and management for the
// dispatcher daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete daemon configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Serial  SerialConfig  `mapstructure:"serial" yaml:"serial"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds the TCP listener settings.
type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
}

// SerialConfig holds dispatcher-wide serial defaults shared by every
// configured port, independent of each port's own role/device path (those
// come from `dewd serve`'s repeatable flags, not the config file).
type SerialConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	RingCapacity   int `mapstructure:"ring_capacity" yaml:"ring_capacity"`
	MaxFrameLength int `mapstructure:"max_frame_length" yaml:"max_frame_length"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Dir        string `mapstructure:"dir" yaml:"dir"`
	RawCapture bool   `mapstructure:"raw_capture" yaml:"raw_capture"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress: ":2023",
		},
		Serial: SerialConfig{
			PollIntervalMs: 100,
			RingCapacity:   10000,
			MaxFrameLength: 2048,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "/tmp/dewd/",
			RawCapture: false,
		},
	}
}

// SetDefaults sets default values in viper.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("server.listen_address", defaults.Server.ListenAddress)

	viper.SetDefault("serial.poll_interval_ms", defaults.Serial.PollIntervalMs)
	viper.SetDefault("serial.ring_capacity", defaults.Serial.RingCapacity)
	viper.SetDefault("serial.max_frame_length", defaults.Serial.MaxFrameLength)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.raw_capture", defaults.Logging.RawCapture)
}

// Load reads configuration from viper and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	viper.SetConfigFile(path)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Load()
}

// LoadOrDefault loads configuration from file, or returns default if file doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadFromFile(path)
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	for key, value := range c.toMap() {
		viper.Set(key, value)
	}

	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// toMap converts config to a map for viper.
func (c *Config) toMap() map[string]interface{} {
	return map[string]interface{}{
		"server":  c.Server,
		"serial":  c.Serial,
		"logging": c.Logging,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}

	if c.Serial.PollIntervalMs < 1 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}

	if c.Serial.RingCapacity < 1 {
		return fmt.Errorf("ring_capacity must be positive")
	}

	if c.Serial.MaxFrameLength < 1 {
		return fmt.Errorf("max_frame_length must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path for the current OS.
func DefaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "dewd", "config.yaml")
	case "darwin":
		return "/usr/local/etc/dewd/config.yaml"
	default:
		return "/etc/dewd/config.yaml"
	}
}

// UserConfigPath returns the user-specific configuration file path.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, ".dewd", "config.yaml")
	default:
		return filepath.Join(home, ".config", "dewd", "config.yaml")
	}
}

// InitViper initializes viper with default configuration paths.
func InitViper(configFile string) error {
	SetDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, _ := os.UserHomeDir()
		if home != "" {
			viper.AddConfigPath(filepath.Join(home, ".dewd"))
			viper.AddConfigPath(filepath.Join(home, ".config", "dewd"))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/dewd")

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("DEWD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}
