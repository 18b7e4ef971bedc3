package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DeviceConfig selects the instrument port
type DeviceConfig struct {
	// PortName is matched as a case-insensitive substring of the port names.
	PortName string `json:"portName"`
}

// TransferConfig tunes SysEx bulk transfers
type TransferConfig struct {
	AckTimeoutMs int `json:"ackTimeoutMs,omitempty"`
	ChunkSize    int `json:"chunkSize,omitempty"`
	SettleMs     int `json:"settleMs,omitempty"`
}

// CacheConfig locates the parameter width cache
type CacheConfig struct {
	Dir string `json:"dir,omitempty"`
}

// ThemeConfig picks the colour palette
type ThemeConfig struct {
	// Palette is a GIMP .gpl file. Empty uses the built-in palette.
	Palette string `json:"palette,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Device   DeviceConfig   `json:"device"`
	Transfer TransferConfig `json:"transfer,omitempty"`
	Cache    CacheConfig    `json:"cache,omitempty"`
	Theme    ThemeConfig    `json:"theme,omitempty"`
	Debug    bool           `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			PortName: "CASIO USB-MIDI",
		},
		Transfer: TransferConfig{
			AckTimeoutMs: 4000,
			ChunkSize:    128,
			SettleMs:     300,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-ac7"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. Missing fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// AckTimeout returns the transfer timeout as a duration
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Transfer.AckTimeoutMs) * time.Millisecond
}

// Settle returns the pause after end-of-session packets
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Transfer.SettleMs) * time.Millisecond
}

// CacheDir returns the width cache directory, defaulting to cache/ under
// the config directory. An empty result means no persistent cache.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cache")
}

// LogPath returns the debug log location
func LogPath() string {
	dir, err := ConfigDir()
	if err != nil {
		return "debug.log"
	}
	return filepath.Join(dir, "debug.log")
}
