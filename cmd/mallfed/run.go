package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pevans/mallfed/collector"
	"github.com/pevans/mallfed/config"
	"github.com/pevans/mallfed/merge"
	"github.com/pevans/mallfed/mirror"
	"github.com/pevans/mallfed/report"
)

func handleRun(cfg *config.Config, args []string) {
	// Parse flags for run command
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	mallIDs := fs.String("malls", "", "Comma-separated mall ids (default: every enabled mall)")
	region := fs.String("region", "", "Only scrape malls in this region")
	replace := fs.Bool("replace", false, "Replace each successful mall's products instead of merging")
	dryRun := fs.Bool("dry-run", false, "Scrape and merge without writing the catalog")
	concurrency := fs.Int("concurrency", cfg.Concurrency, "Number of malls scraped in parallel")
	browser := fs.Bool("browser", false, "Render every mall in headless Chrome")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	if *format != "table" && *format != "json" {
		fmt.Fprintf(os.Stderr, "Error: --format must be 'table' or 'json'\n")
		os.Exit(1)
	}
	if *concurrency < 1 {
		fmt.Fprintf(os.Stderr, "Error: --concurrency must be at least 1\n")
		os.Exit(1)
	}

	registry := loadRegistry(cfg)
	malls, err := registry.Select(splitList(*mallIDs), *region)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(malls) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no malls selected\n")
		os.Exit(1)
	}

	store := openStore(cfg)
	hist := openHistory(cfg)
	defer hist.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []collector.Option{collector.WithHistory(hist)}
	if cfg.Mirror.DSN != "" && !*dryRun {
		m, err := mirror.NewPostgresMirror(ctx, cfg.Mirror.DSN)
		if err != nil {
			slog.Warn("catalog mirror unavailable, continuing without it", "error", err)
		} else {
			defer m.Close()
			opts = append(opts, collector.WithMirror(m))
		}
	}

	runConfig := collector.DefaultConfig()
	runConfig.Concurrency = *concurrency
	runConfig.RequestDelay = cfg.Fetch.RequestDelay.Std()
	runConfig.Fetch = cfg.FetchOptions()
	runConfig.Fetch.Browser = *browser
	runConfig.Replace = *replace
	runConfig.DryRun = *dryRun

	if *format == "table" {
		fmt.Printf("Scraping %d mall(s)...\n\n", len(malls))
	}

	sum, err := collector.New(store, runConfig, opts...).Run(ctx, malls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: run failed: %v\n", err)
		if collector.IsFatal(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	reportPath, err := report.WriteJSON(cfg.Reports, sum)
	if err != nil {
		slog.Warn("failed to write run report", "error", err)
	}

	if *format == "json" {
		printJSON(sum)
	} else {
		report.Print(os.Stdout, sum)
		if reportPath != "" {
			fmt.Printf("Report: %s\n", reportPath)
		}
	}

	// Exit with error code if no mall produced anything
	if len(sum.MallIDs(merge.StatusOK)) == 0 {
		os.Exit(1)
	}
}
