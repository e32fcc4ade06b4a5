package main

import (
	"fmt"
	"os"

	"github.com/pevans/mallfed/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Get subcommand
	subcommand := os.Args[1]
	if subcommand == "help" || subcommand == "--help" || subcommand == "-h" {
		printUsage()
		return
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.SetupLogging(os.Stderr)

	switch subcommand {
	case "run":
		handleRun(cfg, os.Args[2:])
	case "malls":
		if len(os.Args) < 3 {
			printMallsUsage()
			os.Exit(1)
		}
		handleMallsCommand(cfg, os.Args[2], os.Args[3:])
	case "catalog":
		if len(os.Args) < 3 {
			printCatalogUsage()
			os.Exit(1)
		}
		handleCatalogCommand(cfg, os.Args[2], os.Args[3:])
	case "backups":
		if len(os.Args) < 3 {
			printBackupsUsage()
			os.Exit(1)
		}
		handleBackupsCommand(cfg, os.Args[2], os.Args[3:])
	case "report":
		handleReport(cfg, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("mallfed - Regional mall product aggregator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mallfed <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run        Scrape malls and merge their products into the catalog")
	fmt.Println("  malls      Manage the mall registry")
	fmt.Println("  catalog    Inspect the product catalog")
	fmt.Println("  backups    List, restore and prune catalog backups")
	fmt.Println("  report     Show run reports")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  MALLFED_CONFIG        Path to configuration file (default: mallfed.yaml)")
	fmt.Println("  MALLFED_CATALOG       Path to the catalog file (default: data/products.json)")
	fmt.Println("  MALLFED_MALLS         Path to the mall registry (default: malls.yaml)")
	fmt.Println("  MALLFED_REPORTS       Directory for run reports (default: data/reports)")
	fmt.Println("  MALLFED_HISTORY_DSN   Path to the run history database (default: data/history.db)")
	fmt.Println("  MALLFED_MIRROR_DSN    PostgreSQL DSN for the catalog mirror (default: disabled)")
	fmt.Println("  MALLFED_CONCURRENCY   Malls scraped in parallel (default: 1)")
	fmt.Println("  MALLFED_LOG_LEVEL     debug, info, warn or error (default: info)")
}
