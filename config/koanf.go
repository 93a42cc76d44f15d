package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. CURATA_INDEX_DIM.
const EnvPrefix = "CURATA_"

// PathEnvVar names the environment variable that selects the config file.
const PathEnvVar = EnvPrefix + "CONFIG"

// DefaultPaths lists the files searched, in order, when no path is given.
var DefaultPaths = []string{
	"curata.yaml",
	"curata.yml",
	"/etc/curata/config.yaml",
}

// Load builds the configuration from layered sources:
//  1. Defaults
//  2. YAML file: path, else $CURATA_CONFIG, else the first of DefaultPaths found
//  3. CURATA_* environment variables
//
// An explicitly named file that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file
	configPath, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path == "" {
		explicit = false
		for _, candidate := range DefaultPaths {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", nil
	}

	if _, err := os.Stat(path); err != nil {
		if explicit && errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return "", err
	}
	return path, nil
}

// envTransform maps CURATA_INDEX_EF_SEARCH to index.ef_search. The first
// underscore separates the section from the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}
