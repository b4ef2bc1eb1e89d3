// Package config resolves the daemon's runtime settings. Defaults are
// overlaid by an optional YAML file named in COURIER_CONFIG, then by
// COURIER_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnforcementCoerce = "coerce"
	EnforcementStrict = "strict"
)

type Config struct {
	Addr           string
	SocketPath     string
	DBPath         string
	ArchiveRoot    string
	KeysFile       string
	Enforcement    string
	ExpiryInterval time.Duration
}

func Default() Config {
	return Config{
		Addr:           ":7437",
		DBPath:         "courier.db",
		ArchiveRoot:    "courier-archive",
		KeysFile:       "courier.keys.yaml",
		Enforcement:    EnforcementCoerce,
		ExpiryInterval: time.Minute,
	}
}

// Load builds the effective configuration. A missing COURIER_CONFIG env
// var skips the file layer entirely; a file it names must exist.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("COURIER_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileOverlay mirrors Config with every field optional, so a file that
// names two keys overrides exactly those two. Durations are strings in
// time.ParseDuration syntax.
type fileOverlay struct {
	Addr           *string `yaml:"addr"`
	SocketPath     *string `yaml:"socket_path"`
	DBPath         *string `yaml:"db_path"`
	ArchiveRoot    *string `yaml:"archive_root"`
	KeysFile       *string `yaml:"keys_file"`
	Enforcement    *string `yaml:"enforcement"`
	ExpiryInterval *string `yaml:"expiry_interval"`
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	setIf := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setIf(&c.Addr, overlay.Addr)
	setIf(&c.SocketPath, overlay.SocketPath)
	setIf(&c.DBPath, overlay.DBPath)
	setIf(&c.ArchiveRoot, overlay.ArchiveRoot)
	setIf(&c.KeysFile, overlay.KeysFile)
	setIf(&c.Enforcement, overlay.Enforcement)
	if overlay.ExpiryInterval != nil {
		d, err := time.ParseDuration(*overlay.ExpiryInterval)
		if err != nil {
			return fmt.Errorf("parse config %s: expiry_interval: %w", path, err)
		}
		c.ExpiryInterval = d
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString(&c.Addr, "COURIER_ADDR")
	setString(&c.SocketPath, "COURIER_SOCKET")
	setString(&c.DBPath, "COURIER_DB")
	setString(&c.ArchiveRoot, "COURIER_ARCHIVE_ROOT")
	setString(&c.KeysFile, "COURIER_KEYS_FILE")
	setString(&c.Enforcement, "COURIER_ENFORCEMENT")
	if v, ok := os.LookupEnv("COURIER_EXPIRY_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COURIER_EXPIRY_INTERVAL: %w", err)
		}
		c.ExpiryInterval = d
	}
	return nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path required")
	}
	if c.ArchiveRoot == "" {
		return fmt.Errorf("archive_root required")
	}
	if c.Enforcement != EnforcementCoerce && c.Enforcement != EnforcementStrict {
		return fmt.Errorf("enforcement must be %q or %q, got %q", EnforcementCoerce, EnforcementStrict, c.Enforcement)
	}
	if c.ExpiryInterval <= 0 {
		return fmt.Errorf("expiry_interval must be positive")
	}
	return nil
}
