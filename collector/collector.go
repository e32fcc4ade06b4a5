// Package collector runs a collection pass: it scrapes each mall, merges
// the accepted products into the catalog and commits the result once.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/fetch"
	"github.com/pevans/mallfed/history"
	"github.com/pevans/mallfed/mall"
	"github.com/pevans/mallfed/merge"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("mallfed.collector")

// Config holds configuration for a collector.
type Config struct {
	// Maximum number of malls scraped in parallel; 1 is sequential
	Concurrency int
	// Pause between consecutive requests to the same mall
	RequestDelay time.Duration
	// Fetch defaults, overlaid per mall by the descriptor
	Fetch fetch.Options
	// Replace swaps each successful mall's entries instead of merging
	Replace bool
	// DryRun scrapes and merges in memory without committing
	DryRun bool
	// Consecutive failed runs after which a mall is reported as stale
	FailureThreshold int

	Now        func() time.Time
	NewFetcher func(fetch.Options) fetch.Fetcher
	NewRunID   func() string
}

// DefaultConfig returns a sequential configuration with the default fetch
// options.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:      1,
		RequestDelay:     1500 * time.Millisecond,
		Fetch:            fetch.DefaultOptions(),
		FailureThreshold: 3,
	}
}

// Mirror receives the committed catalog.
type Mirror interface {
	Sync(ctx context.Context, products []catalog.Product) error
}

// Collector scrapes malls into a catalog store.
type Collector struct {
	store   *catalog.Store
	history *history.Store
	mirror  Mirror
	config  Config
}

// Option configures optional collaborators.
type Option func(*Collector)

// WithHistory records every run in h.
func WithHistory(h *history.Store) Option {
	return func(c *Collector) { c.history = h }
}

// WithMirror syncs m after every commit.
func WithMirror(m Mirror) Option {
	return func(c *Collector) { c.mirror = m }
}

// New creates a collector. A nil config means DefaultConfig.
func New(store *catalog.Store, config *Config, opts ...Option) *Collector {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewFetcher == nil {
		cfg.NewFetcher = fetch.New
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}

	c := &Collector{store: store, config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run scrapes malls, merges the accepted products in mall order and commits
// the catalog once. Mall failures are recorded in the summary and never
// abort the run. Errors loading or writing the catalog are returned as is
// (catalog.IOError, catalog.WriteError) together with the summary built so
// far. A cancelled context aborts the run before anything is committed.
func (c *Collector) Run(ctx context.Context, malls []mall.Descriptor) (*merge.Summary, error) {
	ctx, span := tracer.Start(ctx, "Collector.Run")
	defer span.End()

	mode := merge.ModeMerge
	if c.config.Replace {
		mode = merge.ModeReplace
	}
	sum := merge.NewSummary(mode)
	sum.RunID = c.config.NewRunID()
	sum.StartedAt = c.config.Now().UTC()
	sum.CatalogFile = c.store.Path()
	span.SetAttributes(attribute.String("run_id", sum.RunID), attribute.Int("malls", len(malls)))

	// Load first so a corrupt catalog fails before any request is made
	products, err := c.store.Load()
	if err != nil {
		return sum, err
	}

	slog.Info("starting collection",
		"run", sum.RunID, "malls", len(malls), "concurrency", c.config.Concurrency, "mode", mode)

	outcomes := make([]mallOutcome, len(malls))
	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)
	for i, d := range malls {
		g.Go(func() error {
			outcomes[i] = c.collectMall(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		sum.FinishedAt = c.config.Now().UTC()
		return sum, fmt.Errorf("collection cancelled: %w", err)
	}

	for _, o := range outcomes {
		products = c.fold(sum, products, o)
	}
	sum.TotalProducts = len(products)

	if c.config.DryRun {
		slog.Info("dry run, catalog not written", "run", sum.RunID)
	} else if sum.Accepted == 0 {
		slog.Info("no products accepted, catalog left unchanged", "run", sum.RunID)
	} else {
		backup, err := c.store.Commit(products)
		if err != nil {
			sum.FinishedAt = c.config.Now().UTC()
			c.record(sum)
			return sum, err
		}
		sum.BackupFile = backup
		sum.Committed = true
	}
	sum.FinishedAt = c.config.Now().UTC()

	c.record(sum)
	if sum.Committed && c.mirror != nil {
		if err := c.mirror.Sync(ctx, products); err != nil {
			slog.Warn("failed to sync mirror", "run", sum.RunID, "error", err)
		}
	}
	c.reportStale(sum)

	slog.Info("collection finished",
		"run", sum.RunID, "scraped", sum.Scraped, "new", sum.New, "updated", sum.Updated,
		"duplicates", sum.Duplicates, "removed", sum.Removed, "errors", sum.Errors,
		"total", sum.TotalProducts, "committed", sum.Committed)

	return sum, nil
}

// fold merges one mall's outcome into products and sum.
func (c *Collector) fold(sum *merge.Summary, products []catalog.Product, o mallOutcome) []catalog.Product {
	sum.Scraped += o.scraped
	sum.Corrections = append(sum.Corrections, o.corrections...)
	for _, e := range o.rejects {
		sum.AddError(e.MallID, e.Reason, e.Detail)
	}

	var ms *merge.Summary
	switch {
	case len(o.products) == 0:
		// Nothing to merge; a failed mall keeps its catalog entries
	case c.config.Replace:
		products, ms = merge.ReplaceMall(products, o.result.MallID, o.products)
	default:
		products, ms = merge.Merge(products, o.products)
	}
	if ms != nil {
		sum.Absorb(ms)
	}

	sum.Malls = append(sum.Malls, o.result)
	return products
}

// record stores the run in the history database, if any.
func (c *Collector) record(sum *merge.Summary) {
	if c.history == nil {
		return
	}
	if err := c.history.RecordRun(sum); err != nil {
		slog.Warn("failed to record run history", "run", sum.RunID, "error", err)
	}
}

// reportStale warns about malls that have failed FailureThreshold runs in a
// row.
func (c *Collector) reportStale(sum *merge.Summary) {
	if c.history == nil || c.config.FailureThreshold <= 0 {
		return
	}
	for _, m := range sum.Malls {
		if m.Status == merge.StatusOK {
			continue
		}
		n, err := c.history.ConsecutiveFailures(m.MallID)
		if err != nil {
			slog.Warn("failed to read mall history", "mall", m.MallID, "error", err)
			continue
		}
		if n >= c.config.FailureThreshold {
			slog.Warn("mall keeps failing", "mall", m.MallID, "consecutive_failures", n, "status", m.Status)
		}
	}
}

// IsFatal reports whether err should abort a run: a catalog that cannot be
// read or written.
func IsFatal(err error) bool {
	var ioErr *catalog.IOError
	var writeErr *catalog.WriteError
	return errors.As(err, &ioErr) || errors.As(err, &writeErr)
}
