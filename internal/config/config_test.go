package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenNothingElseSet(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.KV.URL)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.Analyzer.Timeout)
}

func TestLoad_FileOverridesDefaultsButOnlyNamedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kv:
  url: redis://file-host:6379/1
http:
  listen_addr: ":9090"
analyzer:
  timeout: 15s
`), 0o600))
	t.Setenv(fileEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://file-host:6379/1", cfg.KV.URL)
	assert.Equal(t, "remediation", cfg.KV.Namespace, "unmentioned sibling field keeps its default")
	assert.Equal(t, ":9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, 15*time.Second, cfg.Analyzer.Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kv:\n  url: redis://file-host:6379/1\n"), 0o600))
	t.Setenv(fileEnvVar, path)
	t.Setenv("REMEDIATION_KV_URL", "redis://env-host:6379/2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://env-host:6379/2", cfg.KV.URL)
}

func TestLoad_OptionOverridesEverything(t *testing.T) {
	t.Setenv("REMEDIATION_KV_URL", "redis://env-host:6379/2")

	cfg, err := Load(WithKVURL("redis://option-host:6379/3"))
	require.NoError(t, err)
	assert.Equal(t, "redis://option-host:6379/3", cfg.KV.URL)
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	t.Setenv(fileEnvVar, filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
