package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when EXAMDRILL_CONFIG is not set.
const DefaultPath = "./examdrill.yaml"

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
// The YAML path comes from EXAMDRILL_CONFIG (fallback DefaultPath). A
// missing default file is not an error; a missing explicit one is.
func Load() (*Config, error) {
	path := os.Getenv("EXAMDRILL_CONFIG")
	return LoadFile(path, path != "")
}

// LoadFile is Load with an explicit path. If required is false and the
// file does not exist, only ENV and defaults are used.
func LoadFile(path string, required bool) (*Config, error) {
	var cfg Config
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if required {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}
