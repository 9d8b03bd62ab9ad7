package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	"BRANDON_GTFS_URL",
	"BRANDON_GTFS_PATH",
	"BRANDON_OUTPUT_DIR",
	"BRANDON_FILES_PREFIX",
	"BRANDON_SPEC_FILE",
	"BRANDON_STORAGE",
	"BRANDON_STORAGE_DIR",
	"BRANDON_POSTGRES_URL",
	"BRANDON_CACHE_FILE",
	"BRANDON_DATE",
	"BRANDON_WORKERS",
	"BRANDON_FAIL_ON_AMBIGUOUS",
	"BRANDON_HTTP_TIMEOUT_SEC",
	"BRANDON_LOG_FORMAT",
	"BRANDON_DEBUG",
	"BRANDON_METRICS_FILE",
}

// Unsets every variable for the duration of the test.
func clearEnv(t *testing.T) {
	for _, k := range allVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, &Config{
		GTFSURL:         "http://opendata.brandon.ca/Transit/google_transit.zip",
		OutputDir:       "output",
		Storage:         StorageMemory,
		StorageDir:      ".",
		Workers:         4,
		FailOnAmbiguous: true,
		HTTPTimeout:     60 * time.Second,
		LogFormat:       LogFormatConsole,
	}, cfg)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BRANDON_GTFS_PATH", "/tmp/google_transit.zip")
	t.Setenv("BRANDON_FILES_PREFIX", "brandon_")
	t.Setenv("BRANDON_STORAGE", "SQLite")
	t.Setenv("BRANDON_DATE", "20231002")
	t.Setenv("BRANDON_WORKERS", "8")
	t.Setenv("BRANDON_FAIL_ON_AMBIGUOUS", "no")
	t.Setenv("BRANDON_HTTP_TIMEOUT_SEC", "5")
	t.Setenv("BRANDON_LOG_FORMAT", "json")
	t.Setenv("BRANDON_DEBUG", "1")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/google_transit.zip", cfg.GTFSPath)
	assert.Equal(t, "brandon_", cfg.FilesPrefix)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, "20231002", cfg.Date)
	assert.Equal(t, 8, cfg.Workers)
	assert.False(t, cfg.FailOnAmbiguous)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.True(t, cfg.Debug)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("BRANDON_OUTPUT_DIR", "from-env")

	path := filepath.Join(t.TempDir(), "brandon.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"BRANDON_FILES_PREFIX=file_\n"+
			"BRANDON_OUTPUT_DIR=from-file\n"+
			"BRANDON_WORKERS=2\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file_", cfg.FilesPrefix)
	assert.Equal(t, "from-env", cfg.OutputDir)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoadInvalid(t *testing.T) {
	for _, tc := range []struct {
		name  string
		key   string
		value string
	}{
		{"storage", "BRANDON_STORAGE", "mongo"},
		{"postgres_without_url", "BRANDON_STORAGE", "postgres"},
		{"date", "BRANDON_DATE", "2023-10-02"},
		{"workers_zero", "BRANDON_WORKERS", "0"},
		{"workers_nan", "BRANDON_WORKERS", "many"},
		{"timeout", "BRANDON_HTTP_TIMEOUT_SEC", "-1"},
		{"fail_on_ambiguous", "BRANDON_FAIL_ON_AMBIGUOUS", "maybe"},
		{"debug", "BRANDON_DEBUG", "loud"},
		{"log_format", "BRANDON_LOG_FORMAT", "xml"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}

	clearEnv(t)
	t.Setenv("BRANDON_STORAGE", "postgres")
	t.Setenv("BRANDON_POSTGRES_URL", "postgres://localhost/gtfs")
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
}
