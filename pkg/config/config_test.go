package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qbank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, cfg.Key)
	assert.Equal(t, 100, cfg.DedupPrefix)
	assert.Equal(t, []string{"XXXX", "Unknown", ""}, cfg.SentinelYears)
	assert.Equal(t, "Medium", cfg.Difficulty)
	assert.Equal(t, 4, cfg.AuditMinOptions)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
store_dir: /srv/qbank
dedup_prefix: 150
fallback_year: "2023"
sentinel_years: ["XXXX"]
colleges:
  KGMC: kgmc
  KMC: kmc
fixups:
  - pattern: '\bpatents\b'
    replace: patients
workers: 8
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/qbank", cfg.StoreDir)
	assert.Equal(t, 150, cfg.DedupPrefix)
	assert.Equal(t, []string{"XXXX"}, cfg.SentinelYears)
	assert.Equal(t, "kgmc", cfg.Colleges["KGMC"])
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, DefaultKey, cfg.Key, "unset fields keep defaults")

	p, err := cfg.Policy()
	require.NoError(t, err)
	require.Len(t, p.Fixups, 1)
	assert.Equal(t, "patients", p.Fixups[0].Pattern.ReplaceAllString("patents", p.Fixups[0].Replace))
	assert.Equal(t, "2023", p.FallbackYear)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "store_dir: from-file\nkey: filekey\n")
	t.Setenv(EnvKey, "envkey")
	t.Setenv(EnvStoreDir, "from-env")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvWorkers, "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "envkey", cfg.Key)
	assert.Equal(t, "from-env", cfg.StoreDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Workers)
}

func TestEnvWorkersMustBeNumeric(t *testing.T) {
	t.Setenv(EnvWorkers, "many")
	_, err := Load("")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, EnvWorkers, ve.Field)
}

func TestValidateCollectsErrors(t *testing.T) {
	path := writeConfig(t, `
key: ""
dedup_prefix: 0
min_options: 1
log_level: loud
fixups:
  - pattern: "("
`)
	_, err := Load(path)
	require.Error(t, err)
	for _, field := range []string{"key", "dedup_prefix", "min_options", "log_level", "fixups[0]"} {
		assert.Contains(t, err.Error(), "invalid "+field)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "dedup_prefix: [1"))
	assert.Error(t, err)
}
