package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/extract"
	"github.com/pevans/mallfed/fetch"
	"github.com/pevans/mallfed/mall"
	"github.com/pevans/mallfed/merge"
	"github.com/pevans/mallfed/normalize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// mallOutcome is what scraping one mall produced.
type mallOutcome struct {
	result      merge.MallResult
	scraped     int
	products    []catalog.Product
	corrections []normalize.Correction
	rejects     []merge.RecordError
}

// collectMall fetches every listing page of a mall, extracts candidates and
// normalizes them. It never fails: problems end up in the outcome.
func (c *Collector) collectMall(ctx context.Context, d mall.Descriptor) (out mallOutcome) {
	ctx, span := tracer.Start(ctx, "Collector.collectMall",
		trace.WithAttributes(attribute.String("mall", d.ID), attribute.String("region", d.Region)))
	defer span.End()

	started := time.Now()
	d = d.WithDefaults()
	out = mallOutcome{result: merge.MallResult{
		MallID:   d.ID,
		MallName: d.Name,
		Region:   d.Region,
	}}
	defer func() { out.result.Duration = time.Since(started) }()

	candidates, pages, strategy, err := c.scrape(ctx, d)
	out.result.Pages = pages
	out.result.Strategy = strategy
	out.scraped = len(candidates)
	out.result.Candidates = len(candidates)

	if len(candidates) == 0 {
		var empty *extract.EmptyError
		if errors.As(err, &empty) {
			out.result.Status = merge.StatusExtractionEmpty
		} else {
			out.result.Status = merge.StatusFetchError
		}
		if err != nil {
			out.result.Error = err.Error()
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, out.result.Status)
		slog.Warn("mall produced no products", "mall", d.ID, "status", out.result.Status, "error", err)
		return out
	}

	now := c.config.Now()
	seen := map[string]bool{}
	for _, cand := range candidates {
		res, err := normalize.Normalize(cand, d, now)
		if err != nil {
			out.result.Rejected++
			out.rejects = append(out.rejects, rejection(d.ID, cand, err))
			continue
		}
		key := res.Product.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out.products = append(out.products, res.Product)
		out.corrections = append(out.corrections, res.Corrections...)
	}

	out.result.Accepted = len(out.products)
	out.result.Status = merge.StatusOK
	slog.Info("collected mall",
		"mall", d.ID, "strategy", strategy, "pages", pages,
		"candidates", len(candidates), "accepted", out.result.Accepted, "rejected", out.result.Rejected)
	return out
}

// scrape walks listing URLs and their pages. Paging a listing stops at
// MaxPages, at the first page that yields nothing or at the first fetch
// error. The returned error explains an empty result.
func (c *Collector) scrape(ctx context.Context, d mall.Descriptor) ([]extract.Candidate, int, string, error) {
	listings, err := d.ResolveListingURLs()
	if err != nil {
		return nil, 0, "", err
	}

	fetcher := c.config.NewFetcher(c.config.Fetch.ForMall(d.Fetch))

	var (
		candidates []extract.Candidate
		pages      int
		requests   int
		strategy   string
		firstErr   error
	)
	note := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

walk:
	for _, listing := range listings {
		for page := 1; page <= d.Pagination.MaxPages; page++ {
			pageURL, err := d.PageURL(listing, page)
			if err != nil {
				note(err)
				break
			}

			if requests > 0 {
				if err := sleep(ctx, c.config.RequestDelay); err != nil {
					note(err)
					break walk
				}
			}
			requests++

			res, err := fetcher.Fetch(ctx, pageURL)
			if err != nil {
				var fetchErr *fetch.FetchError
				if errors.As(err, &fetchErr) && fetchErr.Permanent() {
					slog.Warn("page unavailable", "mall", d.ID, "url", pageURL, "error", err)
				} else {
					slog.Warn("failed to fetch page", "mall", d.ID, "url", pageURL, "error", err)
				}
				note(err)
				if ctx.Err() != nil {
					break walk
				}
				break
			}
			pages++

			result, err := extract.Extract(extract.NewPage(res.URL, res.ContentType, res.Body), d)
			if err != nil {
				if page == 1 {
					note(err)
				}
				slog.Debug("no products on page", "mall", d.ID, "url", pageURL, "error", err)
				break
			}
			if strategy == "" {
				strategy = result.Strategy
			}
			candidates = append(candidates, result.Candidates...)
			slog.Debug("extracted page",
				"mall", d.ID, "url", pageURL, "strategy", result.Strategy, "candidates", len(result.Candidates))

			if d.MaxProducts > 0 && len(candidates) >= d.MaxProducts {
				candidates = candidates[:d.MaxProducts]
				break walk
			}
		}
	}

	return candidates, pages, strategy, firstErr
}

// rejection turns a normalization failure into a summary entry.
func rejection(mallID string, cand extract.Candidate, err error) merge.RecordError {
	var nerr *normalize.Error
	if errors.As(err, &nerr) {
		detail := cand.Name
		if nerr.Value != "" && nerr.Value != cand.Name {
			detail += ": " + nerr.Value
		}
		return merge.RecordError{MallID: mallID, Reason: nerr.Reason, Detail: detail}
	}
	return merge.RecordError{MallID: mallID, Reason: "normalization_error", Detail: err.Error()}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
