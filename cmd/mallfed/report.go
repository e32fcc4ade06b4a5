package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pevans/mallfed/config"
	"github.com/pevans/mallfed/merge"
	"github.com/pevans/mallfed/report"
)

func printReportUsage() {
	fmt.Println("mallfed report -- Show run reports")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mallfed report <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  last       Show the most recent run report")
	fmt.Println("  list       List run reports, newest first")
	fmt.Println("  show       Show a report file")
	fmt.Println("  help       Show this help message")
}

func handleReport(cfg *config.Config, args []string) {
	if len(args) < 1 {
		printReportUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "last":
		handleReportShow(cfg, args[1:], true)
	case "show":
		handleReportShow(cfg, args[1:], false)
	case "list":
		handleReportList(cfg)
	case "help", "--help", "-h":
		printReportUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown report command: %s\n\n", args[0])
		printReportUsage()
		os.Exit(1)
	}
}

func handleReportShow(cfg *config.Config, args []string, latest bool) {
	fs := flag.NewFlagSet("report show", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	var (
		sum *merge.Summary
		err error
	)
	if latest {
		sum, err = report.Latest(cfg.Reports)
	} else {
		if fs.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "Error: report file is required\n")
			fmt.Fprintf(os.Stderr, "Usage: mallfed report show <file>\n")
			os.Exit(1)
		}
		path := fs.Arg(0)
		if filepath.Base(path) == path {
			if _, statErr := os.Stat(path); statErr != nil {
				path = filepath.Join(cfg.Reports, path)
			}
		}
		sum, err = report.ReadJSON(path)
	}
	if err != nil {
		if errors.Is(err, report.ErrNoReports) {
			fmt.Println("No run reports yet. Run 'mallfed run' first.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *format == "json" {
		printJSON(sum)
		return
	}
	report.Print(os.Stdout, sum)
}

func handleReportList(cfg *config.Config) {
	paths, err := report.List(cfg.Reports)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Println("No run reports yet.")
		return
	}
	for _, p := range paths {
		fmt.Println(filepath.Base(p))
	}
}
