package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TRACKHUB_HOME", home)
	t.Setenv("TRACKHUB_ENV_FILE", "")
	for _, k := range []string{"LOG_LEVEL", "MAX_PARALLEL", "POGO_BINARY", "POGO_TIME_PREFIX", "POGO_MISMATCHES", "METRICS_PORT"} {
		t.Setenv("TRACKHUB_"+k, "")
	}
	return home
}

func TestDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(home, "sessions"), cfg.SessionsDir)
	assert.Equal(t, filepath.Join(home, "data"), cfg.DataDir)
	assert.Equal(t, runtime.NumCPU(), cfg.MaxParallel)
	assert.Equal(t, "PoGo", cfg.Pogo.Binary)
	assert.True(t, cfg.Pogo.TimePrefix)
	assert.Nil(t, cfg.Pogo.Mismatches)
	assert.Equal(t, "1h0m0s", cfg.PogoTimeout().String())
}

func TestYAMLFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "trackhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
max_parallel: 2
pogo:
  binary: /opt/pogo/PoGo
  time_prefix: false
  mismatches: 1
species:
  - taxonomy_id: "9606"
    name: Homo sapiens
    assembly: GRCh38
    protein_sequence_file: /ref/human.fa
    gtf_file: /ref/human.gtf
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxParallel)
	assert.Equal(t, "/opt/pogo/PoGo", cfg.Pogo.Binary)
	assert.False(t, cfg.Pogo.TimePrefix)
	require.NotNil(t, cfg.Pogo.Mismatches)
	assert.Equal(t, 1, *cfg.Pogo.Mismatches)
	assert.Equal(t, 3600, cfg.Pogo.TimeoutSeconds)
	require.Len(t, cfg.Species, 1)
	assert.Equal(t, "GRCh38", cfg.Species[0].Assembly)
}

func TestExplicitMissingFileFails(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigFileIsPickedUp(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("max_parallel: 7\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxParallel)
}

func TestEnvFileAndEnvironmentPrecedence(t *testing.T) {
	home := isolate(t)
	envFile := filepath.Join(home, "custom.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRACKHUB_MAX_PARALLEL=3\nTRACKHUB_POGO_BINARY=/env-file/PoGo\n"), 0644))
	path := filepath.Join(home, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_parallel: 9\n"), 0644))

	t.Setenv("TRACKHUB_ENV_FILE", envFile)
	t.Setenv("TRACKHUB_POGO_BINARY", "/process/PoGo")
	t.Setenv("TRACKHUB_POGO_MISMATCHES", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxParallel)
	assert.Equal(t, "/process/PoGo", cfg.Pogo.Binary)
	require.NotNil(t, cfg.Pogo.Mismatches)
	assert.Equal(t, 2, *cfg.Pogo.Mismatches)
}

func TestEmptyProcessValueFallsBackToEnvFile(t *testing.T) {
	home := isolate(t)
	envFile := filepath.Join(home, "custom.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRACKHUB_LOG_LEVEL=debug\n"), 0644))
	t.Setenv("TRACKHUB_LOG_LEVEL", "")

	lookup, err := envLookup(envFile)
	require.NoError(t, err)
	v, ok := lookup("TRACKHUB_LOG_LEVEL")
	assert.True(t, ok)
	assert.Equal(t, "debug", v)

	t.Setenv("TRACKHUB_LOG_LEVEL", "warn")
	v, _ = lookup("TRACKHUB_LOG_LEVEL")
	assert.Equal(t, "warn", v)
}

func TestBadEnvValue(t *testing.T) {
	isolate(t)
	t.Setenv("TRACKHUB_MAX_PARALLEL", "many")
	t.Setenv("TRACKHUB_POGO_TIME_PREFIX", "perhaps")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACKHUB_MAX_PARALLEL")
	assert.Contains(t, err.Error(), "TRACKHUB_POGO_TIME_PREFIX")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default(DefaultPaths())
	cfg.LogLevel = "loud"
	cfg.MaxParallel = -1
	cfg.Pogo.Binary = ""
	cfg.Species = []Species{{TaxonomyID: "9606"}, {TaxonomyID: "9606"}, {}}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "max_parallel")
	assert.Contains(t, msg, "pogo.binary")
	assert.Contains(t, msg, "duplicate taxonomy_id 9606")
	assert.Contains(t, msg, "species[2]")
}

func TestDefaultPathsHonorsHome(t *testing.T) {
	t.Setenv("TRACKHUB_HOME", "/srv/trackhub")
	p := DefaultPaths()
	assert.Equal(t, "/srv/trackhub/sessions", p.Sessions)
	assert.Equal(t, "/srv/trackhub/.env", p.EnvFile)
}
