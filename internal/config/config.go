package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// APIConfig holds the enrichment service credentials.
type APIConfig struct {
	Key string `toml:"key"`
	URL string `toml:"url"`
}

// Config holds all leadflow configuration.
type Config struct {
	API                   APIConfig `toml:"api"`
	DataDir               string    `toml:"data_dir"`
	MaxConcurrentAPICalls int       `toml:"max_concurrent_api_calls"`
}

const (
	defaultAPIURL        = "https://api.sixtyfour.ai"
	defaultMaxConcurrent = 5
)

// APIURLOrDefault returns the configured API base URL or the default.
func (c Config) APIURLOrDefault() string {
	if c.API.URL != "" {
		return c.API.URL
	}
	return defaultAPIURL
}

// MaxConcurrentOrDefault returns the row fan-out cap or the default.
func (c Config) MaxConcurrentOrDefault() int {
	if c.MaxConcurrentAPICalls > 0 {
		return c.MaxConcurrentAPICalls
	}
	return defaultMaxConcurrent
}

// DataDirOrDefault returns the data directory or ~/.local/share/leadflow.
func (c Config) DataDirOrDefault() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "leadflow")
}

// UploadsDir is where input CSV files live.
func (c Config) UploadsDir() string { return filepath.Join(c.DataDirOrDefault(), "uploads") }

// OutputsDir is where save_csv writes results.
func (c Config) OutputsDir() string { return filepath.Join(c.DataDirOrDefault(), "outputs") }

// DBPath is the SQLite file holding workflows and run logs.
func (c Config) DBPath() string { return filepath.Join(c.DataDirOrDefault(), "leadflow.db") }

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - SIXTYFOUR_API_KEY overrides api.key
//   - SIXTYFOUR_API_URL overrides api.url
//   - LEADFLOW_DATA_DIR overrides data_dir
//   - LEADFLOW_MAX_CONCURRENT overrides max_concurrent_api_calls
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// DefaultConfigPath returns the default path for the leadflow config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "leadflow", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIXTYFOUR_API_KEY"); v != "" {
		cfg.API.Key = v
	}
	if v := os.Getenv("SIXTYFOUR_API_URL"); v != "" {
		cfg.API.URL = v
	}
	if v := os.Getenv("LEADFLOW_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LEADFLOW_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentAPICalls = n
		}
	}
}
