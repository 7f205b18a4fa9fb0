// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/medline"
	"github.com/poiesic/medline/batch"
	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/ingestion"
	"github.com/poiesic/medline/stream"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Directory holding the batch files",
		},
		&cli.StringFlag{
			Name:  "state-dir",
			Usage: "Directory of the checkpoint store (defaults to <output>/.medline)",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Batch file name prefix",
			Value: config.DefaultFilePrefix,
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "medline",
		Usage: "Incremental ingestion and batching of PubMed records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Parse source files into batch files",
				ArgsUsage: "SOURCE...",
				Action:    ingestCommand,
				Flags: append(outputFlags(),
					&cli.IntFlag{
						Name:    "threshold",
						Aliases: []string{"t"},
						Usage:   "Flush a batch every N units",
						Value:   config.DefaultThreshold,
					},
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Reuse existing batch files instead of parsing the source",
					},
					&cli.IntFlag{
						Name:  "skip-known-count",
						Usage: "Processed count to report when resuming without a checkpoint",
					},
					&cli.StringFlag{
						Name:  "flush-policy",
						Usage: "What to do when a batch cannot be written (continue, abort)",
						Value: string(config.FlushContinue),
					},
					&cli.IntFlag{
						Name:  "flush-retries",
						Usage: "Write attempts per batch",
						Value: config.DefaultFlushRetries,
					},
					&cli.DurationFlag{
						Name:  "flush-retry-delay",
						Usage: "Base delay for exponential backoff between write attempts",
						Value: config.DefaultFlushRetryDelay,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Log progress every N units",
						Value: config.DefaultReportInterval,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of sources ingested concurrently",
						Value: 2,
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Show a progress line per source on stderr",
					},
				),
			},
			{
				Name:   "count",
				Usage:  "Count the records stored in batch files",
				Action: countCommand,
				Flags:  outputFlags(),
			},
			{
				Name:   "runs",
				Usage:  "List the ingestion runs recorded in the state directory",
				Action: runsCommand,
				Flags:  outputFlags(),
			},
			{
				Name:   "stream",
				Usage:  "Write the stored (identifier, text) pairs as tab-separated lines",
				Action: streamCommand,
				Flags: append(outputFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Stop after N records (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "ids-only",
						Usage: "Only write identifiers",
					},
				),
			},
		},
	}
}

// loadConfig builds the configuration from the optional file and the flags
// that were set explicitly.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("output") {
		cfg.OutputDir = c.String("output")
	}
	if c.IsSet("state-dir") {
		cfg.StateDir = c.String("state-dir")
	}
	if c.IsSet("prefix") {
		cfg.FilePrefix = c.String("prefix")
	}
	if c.IsSet("threshold") {
		cfg.Threshold = c.Int("threshold")
	}
	if c.IsSet("resume") {
		cfg.Resume = c.Bool("resume")
	}
	if c.IsSet("skip-known-count") {
		cfg.SkipKnownCount = c.Int("skip-known-count")
	}
	if c.IsSet("flush-policy") {
		cfg.FlushPolicy = config.FlushPolicy(strings.ToLower(c.String("flush-policy")))
	}
	if c.IsSet("flush-retries") {
		cfg.FlushRetries = c.Int("flush-retries")
	}
	if c.IsSet("flush-retry-delay") {
		cfg.FlushRetryDelay = c.Duration("flush-retry-delay")
	}
	if c.IsSet("report-interval") {
		cfg.ReportInterval = c.Int("report-interval")
	}

	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required (--output or output_dir in the config file)")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func ingestCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sources := c.Args().Slice()
	if len(sources) == 0 && !cfg.Resume {
		return fmt.Errorf("at least one source file is required")
	}
	if c.Int("workers") <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	ws, err := medline.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	opts := []ingestion.Option{ingestion.WithPoolSize(c.Int("workers"))}
	if c.Bool("progress") {
		opts = append(opts, ingestion.WithProgress(c.App.ErrWriter))
	}
	pipeline, err := ws.NewIngestionPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	fmt.Fprintf(c.App.ErrWriter, "Output: %s\n", cfg.OutputDir)
	fmt.Fprintf(c.App.ErrWriter, "Threshold: %d\n", cfg.Threshold)
	fmt.Fprintln(c.App.ErrWriter)

	var results []*batch.Result
	switch len(sources) {
	case 0:
		dirs, dirsErr := ws.RunDirs()
		if dirsErr != nil {
			return dirsErr
		}
		if len(dirs) == 0 {
			// Reports that there is nothing to resume from.
			_, err = pipeline.Ingest(ctx, "")
			return fmt.Errorf("ingestion failed: %w", err)
		}
		results, err = pipeline.ResumeAll(ctx, dirs)
	case 1:
		res, ingestErr := pipeline.Ingest(ctx, sources[0])
		if res != nil {
			results = append(results, res)
		}
		err = ingestErr
	default:
		results, err = pipeline.IngestAll(ctx, sources)
	}

	printSummary(c, results)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func printSummary(c *cli.Context, results []*batch.Result) {
	var valid, invalid, lost, files int
	resumed := false
	for _, res := range results {
		if res == nil {
			continue
		}
		valid += res.Processed
		invalid += res.Invalid
		lost += res.Lost
		files += len(res.Files)
		resumed = resumed || res.Resumed
	}

	w := c.App.Writer
	if resumed {
		fmt.Fprintln(w, "Resumed from existing batch files")
	}
	fmt.Fprintf(w, "Valid records: %d\n", valid)
	fmt.Fprintf(w, "Invalid records: %d\n", invalid)
	if lost > 0 {
		fmt.Fprintf(w, "Lost records: %d\n", lost)
	}
	fmt.Fprintf(w, "Batch files: %d\n", files)
}

func countCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	dirs, err := batch.RunDirs(cfg.OutputDir, cfg.FilePrefix)
	if err != nil {
		return err
	}

	files, total := 0, 0
	for _, dir := range dirs {
		batches, err := batch.ListFiles(dir, cfg.FilePrefix)
		if err != nil {
			return err
		}
		for _, f := range batches {
			n, err := stream.Count([]string{f})
			if err != nil {
				return fmt.Errorf("count failed: %w", err)
			}
			total += n
			slog.Debug("counted batch", "file", f, "records", n, "total", total)
		}
		files += len(batches)
	}

	if len(dirs) > 1 {
		fmt.Fprintf(c.App.Writer, "Runs: %d\n", len(dirs))
	}
	fmt.Fprintf(c.App.Writer, "Batch files: %d\n", files)
	fmt.Fprintf(c.App.Writer, "Records: %d\n", total)
	return nil
}

func runsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ws, err := medline.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	runs, err := ws.Runs(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	w := c.App.Writer
	for _, cp := range runs {
		fmt.Fprintf(w, "%s\n", cp.OutputDir)
		fmt.Fprintf(w, "  source: %s\n", cp.Source)
		fmt.Fprintf(w, "  valid: %d, invalid: %d, batches: %d\n", cp.Processed, cp.Invalid, len(cp.Batches))
		fmt.Fprintf(w, "  updated: %s\n", cp.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Runs: %d\n", len(runs))
	return nil
}

func streamCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	limit := c.Int("limit")
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	ws, err := medline.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	r, err := ws.NewReader(ctx, "")
	if err != nil {
		return err
	}

	w := c.App.Writer
	for n := 0; limit == 0 || n < limit; n++ {
		pair, err := r.Next()
		if errors.Is(err, stream.ErrEndOfStream) {
			break
		}
		if err != nil {
			return fmt.Errorf("stream failed: %w", err)
		}
		if c.Bool("ids-only") {
			fmt.Fprintln(w, pair.ID)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", pair.ID, strings.ReplaceAll(pair.Text, "\n", " "))
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
