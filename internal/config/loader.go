package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".spotfinder"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("SPOTFINDER_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		data = substituteEnv(data)
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("SPOTFINDER_PATHS", &cfg.Paths)
	envconfig.Process("SPOTFINDER_MODEL", &cfg.Model)
	envconfig.Process("SPOTFINDER_CONTEXT", &cfg.Context)
	envconfig.Process("SPOTFINDER_MEMORY", &cfg.Memory)
	envconfig.Process("SPOTFINDER_EVENTS", &cfg.Events)
	envconfig.Process("SPOTFINDER_GATEWAY", &cfg.Gateway)

	// Fallback for API key
	if cfg.Model.APIKey == "" {
		if key := os.Getenv("UPSTAGE_API_KEY"); key != "" {
			cfg.Model.APIKey = key
		} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Model.APIKey = key
		}
	}

	// Expand ~ in paths
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Paths.DataDir = filepath.Join(home, cfg.Paths.DataDir[1:])
		}
	}

	return cfg, nil
}

// DBPath returns the absolute path of the SQLite database file.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Paths.DBFile) {
		return c.Paths.DBFile
	}
	return filepath.Join(c.Paths.DataDir, c.Paths.DBFile)
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnv replaces ${VAR} references in the raw config bytes with the
// value of the corresponding environment variable, if set.
func substituteEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		if value, ok := os.LookupEnv(string(parts[1])); ok {
			return []byte(value)
		}
		return match
	})
}
