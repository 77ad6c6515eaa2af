// Package config loads trackhub settings from defaults, a YAML file, a
// .env file and TRACKHUB_* environment variables, in that order.
package config

import (
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config is built once per command and handed to constructors.
type Config struct {
	LogLevel    string    `yaml:"log_level"`
	SessionsDir string    `yaml:"sessions_dir"`
	DataDir     string    `yaml:"data_dir"`
	MaxParallel int       `yaml:"max_parallel"`
	MetricsPort int       `yaml:"metrics_port"`
	Pogo        Pogo      `yaml:"pogo"`
	Species     []Species `yaml:"species"`
}

// Pogo configures how PoGo is launched.
type Pogo struct {
	Binary         string `yaml:"binary"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	GraceSeconds   int    `yaml:"grace_seconds"`
	Shell          string `yaml:"shell"`
	TimePrefix     bool   `yaml:"time_prefix"`
	IsolateOutputs bool   `yaml:"isolate_outputs"`
	Mismatches     *int   `yaml:"mismatches"`
}

// Species is a reference genome PoGo can map against.
type Species struct {
	TaxonomyID          string `yaml:"taxonomy_id"`
	Name                string `yaml:"name"`
	Assembly            string `yaml:"assembly"`
	ProteinSequenceFile string `yaml:"protein_sequence_file"`
	GTFFile             string `yaml:"gtf_file"`
}

// Default returns the built-in settings for the given layout.
func Default(paths Paths) *Config {
	return &Config{
		LogLevel:    "info",
		SessionsDir: paths.Sessions,
		DataDir:     paths.Data,
		MaxParallel: runtime.NumCPU(),
		Pogo: Pogo{
			Binary:         "PoGo",
			TimeoutSeconds: 3600,
			GraceSeconds:   5,
			Shell:          "bash",
			TimePrefix:     true,
		},
	}
}

// Load builds the configuration. An empty path falls back to the default
// config file when it exists.
func Load(path string) (*Config, error) {
	paths := DefaultPaths()
	cfg := Default(paths)

	explicit := path != ""
	if !explicit {
		path = paths.ConfigFile
	}
	if err := cfg.mergeFile(path, explicit); err != nil {
		return nil, err
	}

	envFile := os.Getenv(EnvPrefix + "ENV_FILE")
	if envFile == "" {
		envFile = paths.EnvFile
	}
	lookup, err := envLookup(envFile)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// Validate reports every impossible setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, errors.Newf("log_level: unknown level %q", c.LogLevel))
	}
	if c.SessionsDir == "" {
		errs = append(errs, errors.New("sessions_dir must be set"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if c.MaxParallel < 0 {
		errs = append(errs, errors.Newf("max_parallel: %d is negative", c.MaxParallel))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, errors.Newf("metrics_port: %d out of range", c.MetricsPort))
	}
	if c.Pogo.Binary == "" {
		errs = append(errs, errors.New("pogo.binary must be set"))
	}
	if c.Pogo.TimeoutSeconds < 0 {
		errs = append(errs, errors.Newf("pogo.timeout_seconds: %d is negative", c.Pogo.TimeoutSeconds))
	}
	if c.Pogo.GraceSeconds < 0 {
		errs = append(errs, errors.Newf("pogo.grace_seconds: %d is negative", c.Pogo.GraceSeconds))
	}
	if c.Pogo.Mismatches != nil && *c.Pogo.Mismatches < 0 {
		errs = append(errs, errors.Newf("pogo.mismatches: %d is negative", *c.Pogo.Mismatches))
	}
	seen := map[string]bool{}
	for i, s := range c.Species {
		if s.TaxonomyID == "" {
			errs = append(errs, errors.Newf("species[%d]: taxonomy_id must be set", i))
			continue
		}
		if seen[s.TaxonomyID] {
			errs = append(errs, errors.Newf("species[%d]: duplicate taxonomy_id %s", i, s.TaxonomyID))
		}
		seen[s.TaxonomyID] = true
	}
	return errors.Join(errs...)
}

// PogoTimeout is the per-run budget; 0 means none.
func (c *Config) PogoTimeout() time.Duration {
	return time.Duration(c.Pogo.TimeoutSeconds) * time.Second
}

// PogoGrace is the SIGTERM to SIGKILL delay.
func (c *Config) PogoGrace() time.Duration {
	return time.Duration(c.Pogo.GraceSeconds) * time.Second
}
