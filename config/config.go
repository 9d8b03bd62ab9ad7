package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type Config struct {
	GTFSURL  string
	GTFSPath string

	OutputDir   string
	FilesPrefix string

	// Empty means the specs embedded in the agency package.
	SpecFile string

	Storage     string
	StorageDir  string
	PostgresURL string

	// Cache for downloaded feeds. Empty means in-memory only.
	CacheFile string

	// YYYYMMDD. Empty means today in the feed's timezone.
	Date string

	Workers         int
	FailOnAmbiguous bool
	HTTPTimeout     time.Duration

	LogFormat   string
	Debug       bool
	MetricsFile string
}

// Load reads the given env files (".env" when none are given; missing
// files are ignored) and then the process environment. Variables
// already set in the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		GTFSURL:     getenvDefault("BRANDON_GTFS_URL", "http://opendata.brandon.ca/Transit/google_transit.zip"),
		GTFSPath:    os.Getenv("BRANDON_GTFS_PATH"),
		OutputDir:   getenvDefault("BRANDON_OUTPUT_DIR", "output"),
		FilesPrefix: os.Getenv("BRANDON_FILES_PREFIX"),
		SpecFile:    os.Getenv("BRANDON_SPEC_FILE"),
		StorageDir:  getenvDefault("BRANDON_STORAGE_DIR", "."),
		PostgresURL: os.Getenv("BRANDON_POSTGRES_URL"),
		CacheFile:   os.Getenv("BRANDON_CACHE_FILE"),
		MetricsFile: os.Getenv("BRANDON_METRICS_FILE"),
	}

	cfg.Storage = strings.ToLower(getenvDefault("BRANDON_STORAGE", StorageMemory))
	switch cfg.Storage {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("BRANDON_POSTGRES_URL must be set when BRANDON_STORAGE=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid BRANDON_STORAGE: %q", cfg.Storage)
	}

	if v := os.Getenv("BRANDON_DATE"); v != "" {
		if _, err := time.Parse("20060102", v); err != nil {
			return nil, fmt.Errorf("invalid BRANDON_DATE: %q", v)
		}
		cfg.Date = v
	}

	cfg.Workers = 4
	if v := os.Getenv("BRANDON_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid BRANDON_WORKERS: %q", v)
		}
		cfg.Workers = n
	}

	cfg.HTTPTimeout = 60 * time.Second
	if v := os.Getenv("BRANDON_HTTP_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid BRANDON_HTTP_TIMEOUT_SEC: %q", v)
		}
		cfg.HTTPTimeout = time.Duration(sec) * time.Second
	}

	var err error
	cfg.FailOnAmbiguous, err = getenvBool("BRANDON_FAIL_ON_AMBIGUOUS", true)
	if err != nil {
		return nil, err
	}
	cfg.Debug, err = getenvBool("BRANDON_DEBUG", false)
	if err != nil {
		return nil, err
	}

	cfg.LogFormat = strings.ToLower(getenvDefault("BRANDON_LOG_FORMAT", LogFormatConsole))
	if cfg.LogFormat != LogFormatConsole && cfg.LogFormat != LogFormatJSON {
		return nil, fmt.Errorf("invalid BRANDON_LOG_FORMAT: %q", cfg.LogFormat)
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q", k, v)
}
