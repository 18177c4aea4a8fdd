// Package config loads phase-tracker's runtime configuration: where
// the metadata store and artifact tree live, default lock TTLs, and
// observability toggles. Precedence, highest first: CLI flags, config
// file, environment variables, built-in defaults.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DBPath is the SQLite metadata-store file path.
	DBPath string `yaml:"dbPath"`

	// ArtifactBase is the root of the on-disk artifact tree.
	ArtifactBase string `yaml:"artifactBase"`

	// DefaultLockTTLMs is the default run-lock TTL.
	DefaultLockTTLMs int64 `yaml:"defaultLockTTLMs"`

	// StrictTemplate enables the post-stage template gate.
	StrictTemplate bool `yaml:"strictTemplate"`

	// TraceStdout enables a stdout OpenTelemetry span exporter.
	TraceStdout bool `yaml:"traceStdout"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		DBPath:           "phasetracker.db",
		ArtifactBase:     "./artifacts",
		DefaultLockTTLMs: 300000,
		StrictTemplate:   false,
		TraceStdout:      false,
	}
}

// FromEnv overlays environment variable overrides onto cfg.
func FromEnv(cfg *Config) *Config {
	if v := os.Getenv("PHASETRACKER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PHASETRACKER_ARTIFACT_BASE"); v != "" {
		cfg.ArtifactBase = v
	}
	if v := os.Getenv("PHASETRACKER_STRICT_TEMPLATE"); v == "true" || v == "1" {
		cfg.StrictTemplate = true
	}
	if v := os.Getenv("PHASETRACKER_TRACE_STDOUT"); v == "true" || v == "1" {
		cfg.TraceStdout = true
	}
	return cfg
}

// Load builds the resolved configuration: defaults, then environment
// overrides, then the YAML file at path layered on top, so the config
// file takes precedence over the environment. A missing file is not
// an error; it simply falls back to defaults+env.
func Load(path string) (*Config, error) {
	cfg := FromEnv(Default())

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
