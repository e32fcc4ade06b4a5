package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/config"
	"github.com/pevans/mallfed/history"
	"github.com/pevans/mallfed/mall"
)

// printJSON prints v as indented JSON.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func openStore(cfg *config.Config) *catalog.Store {
	store, err := catalog.NewStore(cfg.Catalog.Path, cfg.StoreOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open catalog: %v\n", err)
		os.Exit(1)
	}
	return store
}

func openHistory(cfg *config.Config) *history.Store {
	hist, err := history.NewStore(cfg.History)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open run history: %v\n", err)
		os.Exit(1)
	}
	return hist
}

func loadRegistry(cfg *config.Config) *mall.Registry {
	registry, err := mall.LoadRegistry(cfg.Malls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return registry
}

func readCatalog(cfg *config.Config) []catalog.Product {
	products, err := catalog.ReadFile(cfg.Catalog.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return products
}
