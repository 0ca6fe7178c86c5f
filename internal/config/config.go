// Package config implements TOML configuration loading and saving for
// reprise, plus platform path resolution for the config file and cache
// directory. The API token can always be supplied through the environment,
// which wins over the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Environment variables honored by the loader.
const (
	// EnvToken overrides the config-file API token.
	EnvToken = "BITRISE_TOKEN"
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "REPRISE_CONFIG"
)

// Sentinel errors for missing required configuration.
var (
	ErrNoToken      = errors.New("config: no API token (set api.token or " + EnvToken + ")")
	ErrNoDefaultApp = errors.New("config: no default app configured (run 'reprise app set <slug>')")
)

// Config is the on-disk configuration.
type Config struct {
	API      APIConfig      `toml:"api"`
	Defaults DefaultsConfig `toml:"defaults"`
	Output   OutputConfig   `toml:"output"`
}

// APIConfig holds API credentials.
type APIConfig struct {
	Token string `toml:"token,omitempty"`
}

// DefaultsConfig holds defaults applied when flags are omitted.
type DefaultsConfig struct {
	AppSlug  string `toml:"app_slug,omitempty"`
	AppName  string `toml:"app_name,omitempty"`
	Username string `toml:"username,omitempty"`
}

// OutputConfig holds output preferences.
type OutputConfig struct {
	Format string `toml:"format,omitempty"` // "pretty" or "json"
}

// DefaultPath returns the config file path, honoring EnvConfigPath.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving config dir: %w", err)
	}

	return filepath.Join(base, "reprise", "config.toml"), nil
}

// CacheDir returns the directory for the app-list cache database.
func CacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving cache dir: %w", err)
	}

	return filepath.Join(base, "reprise"), nil
}

// Load reads the config file at path. A missing file yields defaults, not
// an error — only the token is mandatory, and only when a command needs it.
func Load(path string) (*Config, error) {
	cfg := &Config{Output: OutputConfig{Format: "pretty"}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Output.Format == "" {
		cfg.Output.Format = "pretty"
	}

	return cfg, nil
}

// Save writes the config to path, creating parent directories. The file is
// written with owner-only permissions because it may hold the API token.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("config: encoding %s: %w", path, err)
	}

	return f.Close()
}

// Token returns the API token, preferring the environment over the file.
func (c *Config) Token() (string, error) {
	if tok := os.Getenv(EnvToken); tok != "" {
		return tok, nil
	}

	if c.API.Token != "" {
		return c.API.Token, nil
	}

	return "", ErrNoToken
}

// RequireDefaultApp returns the default app slug or ErrNoDefaultApp.
func (c *Config) RequireDefaultApp() (string, error) {
	if c.Defaults.AppSlug == "" {
		return "", ErrNoDefaultApp
	}

	return c.Defaults.AppSlug, nil
}

// ResolveApp picks the app slug from the flag value or the configured
// default.
func (c *Config) ResolveApp(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	return c.RequireDefaultApp()
}
