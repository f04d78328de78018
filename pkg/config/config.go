// Package config provides configuration loading and management for omepyramid.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Pyramid write parameters
	Write struct {
		// TileSize is the nominal tile edge length in pixels
		TileSize int `yaml:"tileSize"`

		// Levels is the number of resolution levels, the full-resolution
		// image included
		Levels int `yaml:"levels"`

		// Compression selects the tile payload codec: "none" or "deflate"
		Compression string `yaml:"compression"`

		// Method selects the downsampling method: "mean" or "decimate"
		Method string `yaml:"method"`

		// ClassicTIFF writes a classic container instead of BigTIFF
		ClassicTIFF bool `yaml:"classicTiff"`
	} `yaml:"write"`

	// Calibration parameters
	Calibration struct {
		// PixelSizeUM optionally overrides the store's physical pixel size,
		// as [y, x] in micrometers
		PixelSizeUM []float64 `yaml:"pixelSizeUm"`

		// ChannelNames optionally names the channels, one entry per channel
		ChannelNames []string `yaml:"channelNames"`
	} `yaml:"calibration"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Stats logs per-channel intensity statistics before writing
		Stats bool `yaml:"stats"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Write.TileSize = 1024
	cfg.Write.Levels = 3
	cfg.Write.Compression = "deflate"
	cfg.Write.Method = "mean"
	cfg.Write.ClassicTIFF = false

	cfg.Output.Verbose = true
	cfg.Output.Stats = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
