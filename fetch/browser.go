package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// settleDelay gives client-side rendering time to fill listings when no
// wait selector is configured.
const settleDelay = 3 * time.Second

// BrowserFetcher renders pages in headless Chrome for malls whose listings
// are built by JavaScript.
type BrowserFetcher struct {
	opts Options
}

// NewBrowserFetcher returns a fetcher that launches Chrome per call.
func NewBrowserFetcher(o Options) *BrowserFetcher {
	return &BrowserFetcher{opts: o}
}

func (b *BrowserFetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(b.opts.UserAgent),
	)
	if b.opts.InsecureTLS {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if b.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ChromePath))
	}
	return opts
}

// Fetch navigates to url, waits for the listing to render and returns the
// serialized DOM.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "BrowserFetcher.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	defer cancelAlloc()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, b.opts.RetryWait); err != nil {
				lastErr = err
				break
			}
		}
		attempts++

		html, finalURL, err := b.render(allocCtx, url)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempts))
			return &Response{
				URL:         finalURL,
				StatusCode:  200,
				ContentType: "text/html; charset=utf-8",
				Body:        []byte(html),
				Attempts:    attempts,
			}, nil
		}
		lastErr = err
	}

	fetchErr := &FetchError{URL: url, Attempts: attempts, Err: lastErr}
	span.RecordError(fetchErr)
	span.SetStatus(codes.Error, "render failed")
	return nil, fetchErr
}

func (b *BrowserFetcher) render(allocCtx context.Context, url string) (string, string, error) {
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancelTimeout()

	headers := network.Headers{"Accept-Language": b.opts.AcceptLanguage}
	for k, v := range b.opts.Headers {
		headers[k] = v
	}

	var html, location string
	actions := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(url),
	}
	if b.opts.WaitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(b.opts.WaitSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Sleep(settleDelay))
	}
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", "", fmt.Errorf("failed to render page: %w", err)
	}
	if location == "" {
		location = url
	}
	return html, location, nil
}
