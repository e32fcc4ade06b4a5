package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/config"
	"github.com/pevans/mallfed/report"
)

func printBackupsUsage() {
	fmt.Println("mallfed backups -- Manage catalog backups")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mallfed backups <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  list       List backups, newest first")
	fmt.Println("  restore    Replace the catalog with a backup")
	fmt.Println("  prune      Remove backups outside the retention policy")
	fmt.Println("  help       Show this help message")
}

func handleBackupsCommand(cfg *config.Config, action string, args []string) {
	switch action {
	case "list":
		handleBackupsList(cfg, args)
	case "restore":
		handleBackupsRestore(cfg, args)
	case "prune":
		handleBackupsPrune(cfg, args)
	case "help", "--help", "-h":
		printBackupsUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown backups command: %s\n\n", action)
		printBackupsUsage()
		os.Exit(1)
	}
}

func handleBackupsList(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("backups list", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	backups, err := openStore(cfg).ListBackups()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *format == "json" {
		printJSON(backups)
		return
	}
	if len(backups) == 0 {
		fmt.Println("No backups.")
		return
	}
	report.PrintBackups(os.Stdout, backups)
}

func handleBackupsRestore(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: backup name is required\n")
		fmt.Fprintf(os.Stderr, "Usage: mallfed backups restore <backup-name>\n")
		os.Exit(1)
	}
	name := args[0]

	saved, err := openStore(cfg).Restore(name)
	if err != nil {
		if errors.Is(err, catalog.ErrBackupNotFound) {
			fmt.Fprintf(os.Stderr, "Error: %v (see 'mallfed backups list')\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: failed to restore backup: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("✓ Restored catalog from %s\n", name)
	if saved != "" {
		fmt.Printf("  Previous catalog saved as %s\n", saved)
	}
}

func handleBackupsPrune(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("backups prune", flag.ExitOnError)
	fs.Parse(args)

	removed, err := openStore(cfg).Prune()
	for _, name := range removed {
		fmt.Printf("  removed %s\n", name)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Pruned %d backup(s)\n", len(removed))
}
