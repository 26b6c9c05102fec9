package config

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024

	// envPrefix namespaces the daemon's environment variables:
	// INBOXD_SERVER_PORT -> server.port
	envPrefix = "INBOXD_"
)

// Load reads configuration from a YAML file, then overrides with
// INBOXD_* environment variables, then applies defaults and validates.
//
// Precedence (highest to lowest): environment, YAML file, defaults.
// An empty configPath uses ~/.config/inboxd/config.yaml; a missing file
// is not an error. Existing files must not be group/world-readable.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "inboxd", "config.yaml")
	}

	var content []byte
	f, err := os.Open(configPath)
	switch {
	case err == nil:
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
		if err := validateConfigFile(info); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}

		content, err = io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment only.
	default:
		return nil, fmt.Errorf("opening config file: %w", err)
	}

	return loadBytes(content)
}

// loadBytes assembles the config from raw YAML content plus environment
// overrides.
func loadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// INBOXD_SECTION_FIELD_NAME -> section.field_name: the first
	// underscore separates the section, the rest stay in the field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// validateConfigFile rejects oversized or overly permissive files. The
// file can hold API keys and the encryption secret.
func validateConfigFile(info fs.FileInfo) error {
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("file too large (%d bytes, max %d)", info.Size(), maxConfigFileSize)
	}
	// Windows permission bits are not meaningful.
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return fmt.Errorf("permissions %04o too open, want 0600", perm)
		}
	}
	return nil
}
