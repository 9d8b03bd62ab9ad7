package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	parser "github.com/mtransitapps/ca-brandon-transit-bus-parser"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/agency"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/config"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/downloader"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/storage"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/tripspec"
)

var rootCmd = &cobra.Command{
	Use:               "brandon-parser",
	Short:             "Brandon Transit GTFS parser",
	Long:              "Splits Brandon Transit GTFS trips into per direction schedules",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfg *config.Config

	envFile        string
	gtfsURL        string
	gtfsPath       string
	specFile       string
	storageBackend string
	headers        []string
	debug          bool
	logFormat      string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "", ".env", "File with BRANDON_* environment variables")
	rootCmd.PersistentFlags().StringVarP(&gtfsURL, "gtfs-url", "", "", "GTFS static URL")
	rootCmd.PersistentFlags().StringVarP(&gtfsPath, "gtfs-path", "", "", "GTFS static zip file, used instead of the URL")
	rootCmd.PersistentFlags().StringVarP(&specFile, "spec-file", "", "", "Route trip spec YAML file (default: built-in Brandon specs)")
	rootCmd.PersistentFlags().StringVarP(&storageBackend, "storage", "", "", "Feed storage: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "", []string{}, "GTFS HTTP header")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "", false, "Debug logging")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "", "", "Log format: console or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Loads config from env, with flags taking precedence, and sets up
// logging.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("gtfs-url") {
		cfg.GTFSURL = gtfsURL
	}
	if flags.Changed("gtfs-path") {
		cfg.GTFSPath = gtfsPath
	}
	if flags.Changed("spec-file") {
		cfg.SpecFile = specFile
	}
	if flags.Changed("storage") {
		cfg.Storage = strings.ToLower(storageBackend)
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(logFormat)
	}

	if cfg.LogFormat != config.LogFormatJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.Debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	return nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

func buildStorage() (storage.Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStorage(), nil
	case config.StorageSQLite:
		s, err := storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: cfg.StorageDir})
		if err != nil {
			return nil, fmt.Errorf("creating sqlite storage: %w", err)
		}
		return s, nil
	case config.StoragePostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres storage requires BRANDON_POSTGRES_URL")
		}
		s, err := storage.NewPSQLStorage(cfg.PostgresURL, false)
		if err != nil {
			return nil, fmt.Errorf("creating postgres storage: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

func loadRegistry() (*tripspec.Registry, error) {
	if cfg.SpecFile == "" {
		return agency.Registry()
	}
	return tripspec.LoadRegistryFile(cfg.SpecFile)
}

// The caller closes the generator, and with it the storage.
func buildGenerator() (*parser.Generator, error) {
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	log.Debug().Strs("routes", registry.RouteIDs()).Msg("loaded trip specs")

	parsedHeaders, err := parseHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	var feedCache downloader.Downloader
	if cfg.CacheFile != "" {
		feedCache, err = downloader.NewFilesystem(cfg.CacheFile)
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
	}

	s, err := buildStorage()
	if err != nil {
		return nil, err
	}

	g := parser.NewGenerator(s, registry)
	g.Workers = cfg.Workers
	g.FailOnAmbiguous = cfg.FailOnAmbiguous
	g.StaticTimeout = cfg.HTTPTimeout
	g.Headers = parsedHeaders
	if feedCache != nil {
		g.Downloader = feedCache
	}

	return g, nil
}

func closeGenerator(g *parser.Generator) {
	if err := g.Close(); err != nil {
		log.Warn().Err(err).Msg("closing storage")
	}
}

// Loads the configured feed, preferring a local file over the URL.
func loadSchedule(ctx context.Context, g *parser.Generator) (*parser.Schedule, error) {
	source := cfg.GTFSURL
	if cfg.GTFSPath != "" {
		source = cfg.GTFSPath
	}
	if source == "" {
		return nil, fmt.Errorf("GTFS URL or path is required")
	}

	return g.LoadFeed(ctx, source)
}
