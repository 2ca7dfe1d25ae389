package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_AppliesDocumentedDefaults(t *testing.T) {
	cfg := New()
	require.Equal(t, "data/index", cfg.Index.Dir)
	require.Equal(t, "data/archives", cfg.Archive.Dir)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Cache.Enabled)
}

func TestLogDirList_SplitsAndTrimsCommaSeparatedDirs(t *testing.T) {
	cfg := IngestConfig{LogDirs: " /var/log/app , /var/log/other ,,"}
	require.Equal(t, []string{"/var/log/app", "/var/log/other"}, cfg.LogDirList())
}

func TestLogDirList_EmptyReturnsNil(t *testing.T) {
	cfg := IngestConfig{}
	require.Nil(t, cfg.LogDirList())
}

func TestLoad_EnvOverridesYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("index:\n  dir: /from/yaml\narchive:\n  dir: /from/yaml/archive\n"), 0o644))

	t.Setenv("CONFIG_FILE", yamlPath)
	t.Setenv("INDEX_DIR", "/from/env")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/from/env", cfg.Index.Dir)
	require.Equal(t, "/from/yaml/archive", cfg.Archive.Dir)
}

func TestLoad_MissingConfigFileIsNotAnError(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "data/index", cfg.Index.Dir)
}
