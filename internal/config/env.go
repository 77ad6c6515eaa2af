package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "TRACKHUB_"

// Paths holds the standard trackhub directory layout.
type Paths struct {
	// Home is the trackhub home directory (~/.trackhub, or TRACKHUB_HOME)
	Home string

	// Sessions holds one working directory per pipeline run
	Sessions string

	// Data holds the run history database
	Data string

	// ConfigFile is the default YAML config (~/.trackhub/config.yaml)
	ConfigFile string

	// EnvFile is the .env file path (~/.trackhub/.env)
	EnvFile string
}

// DefaultPaths resolves the layout from the environment.
func DefaultPaths() Paths {
	home := os.Getenv(EnvPrefix + "HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			userHome = "."
		}
		home = filepath.Join(userHome, ".trackhub")
	}
	return Paths{
		Home:       home,
		Sessions:   filepath.Join(home, "sessions"),
		Data:       filepath.Join(home, "data"),
		ConfigFile: filepath.Join(home, "config.yaml"),
		EnvFile:    filepath.Join(home, ".env"),
	}
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// lookupFunc resolves a TRACKHUB_* key, process environment first.
type lookupFunc func(key string) (string, bool)

// envLookup layers the process environment over an optional .env file.
// The file never overrides a variable that is set to a non-empty value.
func envLookup(envFile string) (lookupFunc, error) {
	dotenv := map[string]string{}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			values, err := godotenv.Read(envFile)
			if err != nil {
				return nil, errors.Wrapf(err, "read env file %s", envFile)
			}
			dotenv = values
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// applyEnv overlays TRACKHUB_* settings onto cfg.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, errors.Newf("%s%s: %q is not a number", EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, errors.Newf("%s%s: %q is not a boolean", EnvPrefix, name, v))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	str("SESSIONS_DIR", &cfg.SessionsDir)
	str("DATA_DIR", &cfg.DataDir)
	num("MAX_PARALLEL", &cfg.MaxParallel)
	num("METRICS_PORT", &cfg.MetricsPort)
	str("POGO_BINARY", &cfg.Pogo.Binary)
	num("POGO_TIMEOUT_SECONDS", &cfg.Pogo.TimeoutSeconds)
	num("POGO_GRACE_SECONDS", &cfg.Pogo.GraceSeconds)
	str("POGO_SHELL", &cfg.Pogo.Shell)
	flag("POGO_TIME_PREFIX", &cfg.Pogo.TimePrefix)
	flag("POGO_ISOLATE_OUTPUTS", &cfg.Pogo.IsolateOutputs)
	if v, ok := lookup(EnvPrefix + "POGO_MISMATCHES"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, errors.Newf("%sPOGO_MISMATCHES: %q is not a number", EnvPrefix, v))
		} else {
			cfg.Pogo.Mismatches = &n
		}
	}
	return errors.Join(errs...)
}
