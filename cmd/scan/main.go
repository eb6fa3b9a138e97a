package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/etl"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/privacy"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath   = fs.String("config", "", "Configuration file path")
		rulesPath    = fs.String("rules", "", "PII rules file (JSON or YAML), overrides rules.path")
		outputPath   = fs.String("output", "", "Output file; .csv, .jsonl or .parquet (default redacted_output.csv)")
		workers      = fs.Int("workers", 0, "Number of scan workers")
		batchSize    = fs.Int("batch-size", 0, "Records read per batch")
		validateOnly = fs.Bool("validate-only", false, "Load and validate the rules, then exit")
		strict       = fs.Bool("strict", false, "Reject rules where a combinatorial key has no placeholder")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: scan [options] <input>\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  scan customers.csv\n")
		fmt.Fprintf(stderr, "  scan -rules configs/rules.json -output out.parquet -workers 8 events.jsonl\n")
		fmt.Fprintf(stderr, "  scan -validate-only -rules configs/rules.yaml\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 && !*validateOnly {
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if *rulesPath != "" {
		cfg.Rules.Path = *rulesPath
	}
	if *outputPath != "" {
		cfg.Pipeline.Output = *outputPath
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *batchSize > 0 {
		cfg.Pipeline.BatchSize = *batchSize
	}
	if *strict {
		cfg.Rules.StrictPlaceholders = true
	}

	loggerConfig := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{Enabled: true, Path: cfg.Logging.File.Path}
	}
	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return exitError
	}
	defer log.Sync()

	opts := []privacy.CatalogOption{privacy.WithCatalogLogger(log.WithComponent("rules"))}
	if cfg.Rules.StrictPlaceholders {
		opts = append(opts, privacy.WithStrictPlaceholders())
	}
	catalog, err := privacy.LoadCatalog(cfg.Rules.Path, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load rules: %v\n", err)
		return exitError
	}

	if *validateOnly {
		fmt.Fprintf(stdout, "Rules OK: %s (%d standalone rules, %d combinatorial sets)\n",
			cfg.Rules.Path, len(catalog.Standalone()), len(catalog.Combinatorial()))
		return exitOK
	}

	input := fs.Arg(0)
	log.Info("Starting PII scan",
		zap.String("input", input),
		zap.String("output", cfg.Pipeline.Output),
		zap.String("rules", cfg.Rules.Path))

	pipeline := etl.NewPipeline(privacy.NewScanner(catalog), &etl.Config{
		BatchSize:      cfg.Pipeline.BatchSize,
		WorkerCount:    cfg.Pipeline.Workers,
		ProgressReport: cfg.Pipeline.ProgressReport,
	}, log.WithComponent("pipeline"))

	result, err := pipeline.ProcessFile(ctx, input, cfg.Pipeline.Output)
	if err != nil {
		fmt.Fprintf(stderr, "Scan failed: %v\n", err)
		return exitError
	}

	printSummary(stdout, input, cfg.Pipeline.Output, result)
	return exitOK
}

func printSummary(w io.Writer, input, output string, result *etl.ProcessingResult) {
	fmt.Fprintf(w, "\n=== PII Scan Summary ===\n")
	fmt.Fprintf(w, "Input:           %s\n", input)
	fmt.Fprintf(w, "Output:          %s\n", output)
	fmt.Fprintf(w, "Records:         %d\n", result.TotalRecords)
	fmt.Fprintf(w, "Flagged as PII:  %d\n", result.Flagged)
	fmt.Fprintf(w, "Parse errors:    %d\n", result.ParseErrors)
	if result.Skipped > 0 {
		fmt.Fprintf(w, "Skipped rows:    %d\n", result.Skipped)
	}
	fmt.Fprintf(w, "Duration:        %s\n", result.Duration)
}
