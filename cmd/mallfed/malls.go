package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pevans/mallfed/config"
	"github.com/pevans/mallfed/mall"
	"github.com/pevans/mallfed/report"
)

func printMallsUsage() {
	fmt.Println("mallfed malls -- Manage the mall registry")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mallfed malls <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  list       List registered malls")
	fmt.Println("  validate   Check every mall descriptor")
	fmt.Println("  status     Show recent run health per mall")
	fmt.Println("  import     Convert a plain-text mall list into registry YAML")
	fmt.Println("  help       Show this help message")
}

func handleMallsCommand(cfg *config.Config, action string, args []string) {
	switch action {
	case "list":
		handleMallsList(cfg, args)
	case "validate":
		handleMallsValidate(cfg, args)
	case "status":
		handleMallsStatus(cfg, args)
	case "import":
		handleMallsImport(args)
	case "help", "--help", "-h":
		printMallsUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown malls command: %s\n\n", action)
		printMallsUsage()
		os.Exit(1)
	}
}

func handleMallsList(cfg *config.Config, args []string) {
	// Parse flags for list command
	fs := flag.NewFlagSet("malls list", flag.ExitOnError)
	region := fs.String("region", "", "Only list malls in this region")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	registry := loadRegistry(cfg)
	var malls []mall.Descriptor
	for _, d := range registry.Malls {
		if *region == "" || d.Region == *region {
			malls = append(malls, d)
		}
	}

	if *format == "json" {
		printJSON(malls)
		return
	}

	if len(malls) == 0 {
		fmt.Println("No malls registered.")
		return
	}

	t := report.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Region", "Platform", "Strategies", "Pages", "Enabled"})
	for _, d := range malls {
		resolved := d.WithDefaults()
		strategies := fmt.Sprintf("%d custom", len(d.Strategies))
		if len(d.Strategies) == 0 {
			strategies = fmt.Sprintf("%d preset", len(resolved.Strategies))
		}
		enabled := "✓"
		if d.Disabled {
			enabled = "✗"
		}
		t.AppendRow(table.Row{d.ID, d.Name, d.Region, resolved.Platform, strategies, resolved.Pagination.MaxPages, enabled})
	}
	t.Render()
}

func handleMallsValidate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("malls validate", flag.ExitOnError)
	fs.Parse(args)

	path := cfg.Malls
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	registry, err := mall.LoadRegistry(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}

	disabled := 0
	for _, d := range registry.Malls {
		if d.Disabled {
			disabled++
		}
	}
	fmt.Printf("✓ %s: %d malls valid (%d disabled)\n", path, len(registry.Malls), disabled)
}

func handleMallsStatus(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("malls status", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json")
	failing := fs.Bool("failing", false, "Only show malls whose last run failed")
	fs.Parse(args)

	hist := openHistory(cfg)
	defer hist.Close()

	statuses, err := hist.MallStatuses()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read run history: %v\n", err)
		os.Exit(1)
	}

	if *failing {
		kept := statuses[:0]
		for _, st := range statuses {
			if st.ConsecutiveFailures > 0 {
				kept = append(kept, st)
			}
		}
		statuses = kept
	}

	if *format == "json" {
		printJSON(statuses)
		return
	}
	if len(statuses) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	report.PrintMallStatuses(os.Stdout, statuses)
}

func handleMallsImport(args []string) {
	fs := flag.NewFlagSet("malls import", flag.ExitOnError)
	out := fs.String("out", "", "Write the registry to this file instead of stdout")
	force := fs.Bool("force", false, "Overwrite --out if it exists")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: mall list file is required\n")
		fmt.Fprintf(os.Stderr, "Usage: mallfed malls import [--out malls.yaml] <list.txt|->\n")
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if name := fs.Arg(0); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open mall list: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	registry, err := mall.ParseMallList(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := registry.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: imported list is invalid: %v\n", err)
		os.Exit(1)
	}

	if *out == "" {
		if err := registry.Write(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if *force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(*out, flags, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create %s: %v\n", *out, err)
		os.Exit(1)
	}
	if err := registry.Write(f); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}

	fmt.Printf("✓ Imported %d malls into %s\n", len(registry.Malls), *out)
}
