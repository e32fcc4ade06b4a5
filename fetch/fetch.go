// Package fetch retrieves mall listing pages over HTTP or through a headless
// browser. Both fetchers retry transient failures with a fixed backoff and
// return bodies decoded to UTF-8.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pevans/mallfed/mall"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("mallfed.fetch")

const (
	DefaultTimeout   = 20 * time.Second
	DefaultRetries   = 2
	DefaultRetryWait = 2 * time.Second

	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// Response is a fetched page with its body decoded to UTF-8.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
}

// Fetcher retrieves one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetchError reports a page that could not be retrieved after all attempts.
// StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: HTTP %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("failed to fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Permanent reports whether retrying later is pointless: the page is gone,
// access is denied or the host does not resolve.
func (e *FetchError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusNotFound, http.StatusGone, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(e.Err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	return false
}

// Options configures a fetcher.
type Options struct {
	Timeout        time.Duration
	Retries        int
	RetryWait      time.Duration
	UserAgent      string
	AcceptLanguage string
	Headers        map[string]string
	InsecureTLS    bool

	// Encoding forces a body charset such as "euc-kr". Empty means detect
	// from the Content-Type header and meta tags.
	Encoding string

	// Browser renders pages in headless Chrome.
	Browser      bool
	WaitSelector string
	ChromePath   string
}

// DefaultOptions returns the options used when neither the configuration
// nor the mall descriptor says otherwise.
func DefaultOptions() Options {
	return Options{
		Timeout:        DefaultTimeout,
		Retries:        DefaultRetries,
		RetryWait:      DefaultRetryWait,
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: DefaultAcceptLanguage,
	}
}

// ForMall overlays a mall's fetch settings on o.
func (o Options) ForMall(f mall.FetchOptions) Options {
	if f.Timeout > 0 {
		o.Timeout = f.Timeout
	}
	if f.Retries != nil {
		o.Retries = max(*f.Retries, 0)
	}
	if f.InsecureTLS {
		o.InsecureTLS = true
	}
	if f.Encoding != "" {
		o.Encoding = f.Encoding
	}
	if len(f.Headers) > 0 {
		headers := make(map[string]string, len(o.Headers)+len(f.Headers))
		for k, v := range o.Headers {
			headers[k] = v
		}
		for k, v := range f.Headers {
			headers[k] = v
		}
		o.Headers = headers
	}
	if f.Browser {
		o.Browser = true
	}
	if f.WaitSelector != "" {
		o.WaitSelector = f.WaitSelector
	}
	return o
}

// New returns the fetcher the options call for.
func New(o Options) Fetcher {
	if o.Browser {
		return NewBrowserFetcher(o)
	}
	return NewHTTPFetcher(o)
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
