package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/output"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generates per direction schedules from the GTFS feed",
	Args:  cobra.NoArgs,
	RunE:  generate,
}

var (
	date            string
	outputDir       string
	filesPrefix     string
	workers         int
	failOnAmbiguous bool
	metricsFile     string
)

func init() {
	generateCmd.Flags().StringVarP(&date, "date", "d", "", "Service date as YYYYMMDD (default: today in the feed's timezone)")
	generateCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory")
	generateCmd.Flags().StringVarP(&filesPrefix, "prefix", "", "", "Output file name prefix")
	generateCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Routes generated in parallel")
	generateCmd.Flags().BoolVarP(&failOnAmbiguous, "fail-on-ambiguous", "", true, "Fail the run on trips matching no direction or both")
	generateCmd.Flags().StringVarP(&metricsFile, "metrics-file", "", "", "Write prometheus metrics to this textfile")
	rootCmd.AddCommand(generateCmd)
}

func generate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("date") {
		if _, err := time.Parse("20060102", date); err != nil {
			return fmt.Errorf("invalid date %q: %w", date, err)
		}
		cfg.Date = date
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("prefix") {
		cfg.FilesPrefix = filesPrefix
	}
	if flags.Changed("workers") {
		if workers <= 0 {
			return fmt.Errorf("workers must be > 0")
		}
		cfg.Workers = workers
	}
	if flags.Changed("fail-on-ambiguous") {
		cfg.FailOnAmbiguous = failOnAmbiguous
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, err := buildGenerator()
	if err != nil {
		return err
	}
	defer closeGenerator(g)

	schedule, err := loadSchedule(ctx, g)
	if err != nil {
		return err
	}

	result, err := g.Generate(ctx, schedule, cfg.Date)
	if err != nil {
		return err
	}

	err = output.Write(cfg.OutputDir, cfg.FilesPrefix, result)
	if err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := g.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
		log.Debug().Str("file", cfg.MetricsFile).Msg("wrote metrics")
	}

	return nil
}
