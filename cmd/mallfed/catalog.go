package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/config"
	"github.com/pevans/mallfed/report"
)

func printCatalogUsage() {
	fmt.Println("mallfed catalog -- Inspect the product catalog")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mallfed catalog <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  stats      Show counts by region, category and mall")
	fmt.Println("  list       List products")
	fmt.Println("  verify     Check every catalog invariant")
	fmt.Println("  help       Show this help message")
}

func handleCatalogCommand(cfg *config.Config, action string, args []string) {
	switch action {
	case "stats":
		handleCatalogStats(cfg, args)
	case "list":
		handleCatalogList(cfg, args)
	case "verify":
		handleCatalogVerify(cfg, args)
	case "help", "--help", "-h":
		printCatalogUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown catalog command: %s\n\n", action)
		printCatalogUsage()
		os.Exit(1)
	}
}

func handleCatalogStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("catalog stats", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	stats := catalog.Summarize(readCatalog(cfg))
	if *format == "json" {
		printJSON(stats)
		return
	}
	report.PrintStats(os.Stdout, stats)
}

func handleCatalogList(cfg *config.Config, args []string) {
	// Parse flags for list command
	fs := flag.NewFlagSet("catalog list", flag.ExitOnError)
	mallID := fs.String("mall", "", "Filter by mall id")
	region := fs.String("region", "", "Filter by region")
	category := fs.String("category", "", "Filter by category")
	query := fs.String("q", "", "Search titles and tags")
	minPrice := fs.Int64("min-price", 0, "Minimum price in KRW")
	maxPrice := fs.Int64("max-price", 0, "Maximum price in KRW")
	limit := fs.Int("limit", 50, "Maximum number of products to show (0 = all)")
	offset := fs.Int("offset", 0, "Number of products to skip")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	if *limit < 0 || *offset < 0 {
		fmt.Fprintf(os.Stderr, "Error: --limit and --offset must not be negative\n")
		os.Exit(1)
	}

	filter := catalog.Filter{
		MallID:   *mallID,
		Region:   *region,
		Category: *category,
		Query:    *query,
		MinPrice: *minPrice,
		MaxPrice: *maxPrice,
	}
	matched := filter.Apply(readCatalog(cfg))

	total := len(matched)
	start := min(*offset, total)
	end := total
	if *limit > 0 {
		end = min(start+*limit, total)
	}
	page := matched[start:end]

	if *format == "json" {
		printJSON(map[string]any{
			"products": page,
			"total":    total,
		})
		return
	}

	if len(page) == 0 {
		fmt.Println("No products to display.")
		return
	}
	fmt.Printf("Showing %d-%d of %d products\n", start+1, start+len(page), total)
	report.PrintProducts(os.Stdout, page)
}

func handleCatalogVerify(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("catalog verify", flag.ExitOnError)
	fs.Parse(args)

	path := cfg.Catalog.Path
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	products, err := catalog.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(2)
	}

	violations := catalog.Verify(products)
	if len(violations) > 0 {
		report.PrintViolations(os.Stdout, violations)
		fmt.Fprintf(os.Stderr, "✗ %s: %d violation(s) in %d products\n", path, len(violations), len(products))
		os.Exit(1)
	}

	fmt.Printf("✓ %s: %d products, all invariants hold\n", path, len(products))
}
