// Package config provides configuration loading and structs for the partcli client.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
type Config struct {
	Debug               bool                    `yaml:"debug"`
	BaseURL             string                  `yaml:"base_url"`
	IdentityProviderURL string                  `yaml:"identity_provider_url"`
	CachePath           string                  `yaml:"cache_path"`
	PageSize            int                     `yaml:"page_size"`
	Jobs                int                     `yaml:"jobs"`
	TimeoutSeconds      int                     `yaml:"timeout_seconds"`
	Tenants             map[string]TenantConfig `yaml:"tenants"`
	Watch               WatchConfig             `yaml:"watch"`
}

// TenantConfig holds per-tenant API credentials.
type TenantConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// WatchConfig holds upload watch settings.
type WatchConfig struct {
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
	Units      string   `yaml:"units"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Tenant returns the credentials for the named tenant alias.
func (c *Config) Tenant(name string) (TenantConfig, error) {
	t, ok := c.Tenants[name]
	if !ok {
		return TenantConfig{}, fmt.Errorf("tenant %q not found in configuration", name)
	}
	return t, nil
}

// DefaultPath returns the default config file location (~/.partcli.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".partcli.yaml"
	}
	return filepath.Join(home, ".partcli.yaml")
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if cfg.CachePath != "" {
		cfg.CachePath = expandPath(cfg.CachePath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting credentials entered interactively.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
