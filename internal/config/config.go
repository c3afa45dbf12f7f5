package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store drivers.
const (
	StoreDriverFile   = "file"
	StoreDriverSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Master key lookup
	Vault VaultConfig `json:"vault" mapstructure:"vault"`

	// Connection profile persistence
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// VaultConfig controls where the encryption key comes from.
// Key derivation cost parameters are fixed in code.
type VaultConfig struct {
	// KeyEnv names the environment variable holding the master passphrase.
	KeyEnv string `json:"key_env" mapstructure:"key_env"`

	// PromptForKey allows an interactive prompt when KeyEnv is unset.
	PromptForKey bool `json:"prompt_for_key" mapstructure:"prompt_for_key"`
}

// StoreConfig for the connection profile store.
type StoreConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // file, sqlite
	Path   string `json:"path" mapstructure:"path"`     // directory for file, database file for sqlite
	Format string `json:"format" mapstructure:"format"` // json, yaml (file driver only)
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".credvault"
	if homeDir, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(homeDir, ".config", "credvault")
	}

	return &Config{
		Vault: VaultConfig{
			KeyEnv:       "CREDVAULT_KEY",
			PromptForKey: true,
		},
		Store: StoreConfig{
			Driver: StoreDriverFile,
			Path:   filepath.Join(dataDir, "profiles"),
			Format: "json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Vault.KeyEnv == "" && !c.Vault.PromptForKey {
		return errors.New("vault.key_env is required when prompting is disabled")
	}

	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}

	switch c.Store.Driver {
	case StoreDriverFile:
		if c.Store.Format != "json" && c.Store.Format != "yaml" {
			return fmt.Errorf("invalid store format: %s", c.Store.Format)
		}
	case StoreDriverSQLite:
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Store.Path}
	if c.Store.Driver == StoreDriverSQLite {
		dirs = []string{filepath.Dir(c.Store.Path)}
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
