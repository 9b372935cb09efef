// Package config loads the tool's configuration from a YAML file, creating
// one with defaults on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the hodlchan tool.
type Config struct {
	// Network is "mainnet" or "testnet".
	Network string `yaml:"network"`

	// RPC holds the Bitcoin node connection settings.
	RPC RPCConfig `yaml:"rpc"`

	// Fee holds fee estimation settings.
	Fee FeeConfig `yaml:"fee"`

	// Storage holds storage settings.
	Storage StorageConfig `yaml:"storage"`

	// Logging holds logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// RPCConfig holds Bitcoin Core JSON-RPC settings.
type RPCConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// FeeConfig holds fee estimation settings.
type FeeConfig struct {
	// TargetBlocks is the confirmation target passed to the fee estimator.
	TargetBlocks int `yaml:"target_blocks"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: "testnet",
		RPC: RPCConfig{
			URL: "http://127.0.0.1:18332",
		},
		Fee: FeeConfig{
			TargetBlocks: 6,
		},
		Storage: StorageConfig{
			DataDir: "~/.hodlchan",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Load loads configuration from a YAML file in dataDir. If the file doesn't
// exist, it creates one with default values.
func Load(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# hodlchan configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
