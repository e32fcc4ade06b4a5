package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/fetch"
	"github.com/pevans/mallfed/history"
	"github.com/pevans/mallfed/mall"
	"github.com/pevans/mallfed/merge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTime = time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)

func card(id, name, price string) string {
	return fmt.Sprintf(`<li class="product-item">
  <a href="/product/%s"><img src="/img/blank.gif" data-src="/img/%s.jpg"></a>
  <p class="name">%s</p>
  <span class="price">%s</span>
</li>`, id, id, name, price)
}

func listing(cards ...string) string {
	return "<html><body><ul>" + strings.Join(cards, "\n") + "</ul></body></html>"
}

// setupTestCollector builds a collector over a temp catalog with a fixed
// clock and no request delay.
func setupTestCollector(t *testing.T, modify func(*Config), opts ...Option) (*Collector, *catalog.Store) {
	t.Helper()
	store, err := catalog.NewStore(filepath.Join(t.TempDir(), "products.json"), catalog.Options{
		Now: func() time.Time { return runTime },
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RequestDelay = 0
	cfg.Fetch.Retries = 0
	cfg.Fetch.RetryWait = time.Millisecond
	cfg.Fetch.Timeout = 2 * time.Second
	cfg.Now = func() time.Time { return runTime }
	runs := 0
	cfg.NewRunID = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}
	if modify != nil {
		modify(cfg)
	}
	return New(store, cfg, opts...), store
}

func descriptor(id, baseURL string) mall.Descriptor {
	return mall.Descriptor{
		ID:      id,
		Name:    id + "몰",
		Region:  "강원",
		BaseURL: baseURL,
	}
}

// fakeFetcher serves canned pages and 404s everything else.
type fakeFetcher struct {
	pages map[string]string
	calls *atomic.Int32
}

func (f fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Response, error) {
	if f.calls != nil {
		f.calls.Add(1)
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.FetchError{URL: url, StatusCode: http.StatusNotFound, Attempts: 1, Err: errors.New("404 Not Found")}
	}
	return &fetch.Response{URL: url, StatusCode: 200, ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
}

type recordingMirror struct {
	mu    sync.Mutex
	syncs [][]catalog.Product
}

func (m *recordingMirror) Sync(_ context.Context, products []catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, products)
	return nil
}

// TestRun_EndToEnd verifies a run over HTTP with one healthy and one
// failing mall: rejected records are counted, truncated prices corrected,
// the failing mall degrades to zero products and the catalog is committed.
func TestRun_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cheorwon":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, listing(
				card("101", "철원 오대쌀 10kg", "32,000원"),
				card("102", "철원 한우 선물세트", "310"),
				card("103", "DMZ 잡곡 세트", "가격문의"),
			))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	hist, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer hist.Close()
	mirror := &recordingMirror{}

	c, store := setupTestCollector(t, nil, WithHistory(hist), WithMirror(mirror))
	malls := []mall.Descriptor{
		descriptor("cheorwon", server.URL+"/cheorwon"),
		descriptor("yanggu", server.URL+"/yanggu"),
	}

	sum, err := c.Run(context.Background(), malls)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Scraped)
	assert.Equal(t, 2, sum.Accepted)
	assert.Equal(t, 2, sum.New)
	assert.Equal(t, 1, sum.Errors)
	require.Len(t, sum.ErrorDetails, 1)
	assert.Equal(t, "unparsable_price", sum.ErrorDetails[0].Reason)
	assert.True(t, sum.Committed)
	assert.Equal(t, 2, sum.TotalProducts)

	require.Len(t, sum.Corrections, 1)
	assert.Equal(t, int64(310), sum.Corrections[0].Parsed)
	assert.Equal(t, int64(310000), sum.Corrections[0].Corrected)

	require.Len(t, sum.Malls, 2)
	assert.Equal(t, merge.StatusOK, sum.Malls[0].Status)
	assert.Equal(t, "product-cards", sum.Malls[0].Strategy)
	assert.Equal(t, 1, sum.Malls[0].Rejected)
	assert.Equal(t, merge.StatusFetchError, sum.Malls[1].Status)
	assert.Contains(t, sum.Malls[1].Error, "503")

	products, err := catalog.ReadFile(store.Path())
	require.NoError(t, err)
	require.Len(t, products, 2)
	byURL := map[string]catalog.Product{}
	for _, p := range products {
		byURL[p.ProductURL] = p
	}
	rice := byURL[server.URL+"/product/101"]
	assert.Equal(t, int64(32000), rice.Price)
	assert.Equal(t, server.URL+"/img/101.jpg", rice.ImageURL)
	assert.Equal(t, "agricultural", rice.Category)
	assert.Equal(t, int64(310000), byURL[server.URL+"/product/102"].Price)
	assert.Empty(t, catalog.Verify(products))

	run, err := hist.GetRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.New)
	failures, err := hist.ConsecutiveFailures("yanggu")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)

	require.Len(t, mirror.syncs, 1)
	assert.Len(t, mirror.syncs[0], 2)

	// A second identical run only refreshes
	again, err := c.Run(context.Background(), malls)
	require.NoError(t, err)
	assert.Zero(t, again.New)
	assert.Zero(t, again.Updated)
	assert.Equal(t, 2, again.Duplicates)
	assert.Equal(t, 2, again.TotalProducts)
	assert.NotEmpty(t, again.BackupFile)
}

// TestRun_AllRejected verifies that a run with nothing accepted leaves the
// catalog untouched.
func TestRun_AllRejected(t *testing.T) {
	base := "https://cwmall.example/shop"
	c, store := setupTestCollector(t, func(cfg *Config) {
		cfg.NewFetcher = func(fetch.Options) fetch.Fetcher {
			return fakeFetcher{pages: map[string]string{
				base: listing(card("1", "철원 오대쌀 10kg", "문의")),
			}}
		}
	})

	sum, err := c.Run(context.Background(), []mall.Descriptor{descriptor("cheorwon", base)})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Scraped)
	assert.Zero(t, sum.Accepted)
	assert.Equal(t, 1, sum.Errors)
	assert.False(t, sum.Committed)
	assert.NoFileExists(t, store.Path())
}

// TestRun_ExtractionEmpty verifies the status of a mall whose pages load
// but contain no recognisable products.
func TestRun_ExtractionEmpty(t *testing.T) {
	base := "https://empty.example/"
	c, _ := setupTestCollector(t, func(cfg *Config) {
		cfg.NewFetcher = func(fetch.Options) fetch.Fetcher {
			return fakeFetcher{pages: map[string]string{base: "<html><body><p>준비중입니다</p></body></html>"}}
		}
	})

	sum, err := c.Run(context.Background(), []mall.Descriptor{descriptor("empty", base)})
	require.NoError(t, err)
	require.Len(t, sum.Malls, 1)
	assert.Equal(t, merge.StatusExtractionEmpty, sum.Malls[0].Status)
	assert.Equal(t, 1, sum.Malls[0].Pages)
	assert.Contains(t, sum.Malls[0].Error, "no products extracted")
}

// TestRun_Pagination verifies that paging stops at the first empty page.
func TestRun_Pagination(t *testing.T) {
	base := "https://paged.example/list"
	var calls atomic.Int32
	c, _ := setupTestCollector(t, func(cfg *Config) {
		cfg.NewFetcher = func(fetch.Options) fetch.Fetcher {
			return fakeFetcher{calls: &calls, pages: map[string]string{
				base:             listing(card("1", "양구 시래기 500g", "8,900원"), card("2", "양구 사과 5kg", "39,000원")),
				base + "?page=2": listing(card("3", "양구 곰취 장아찌", "12,000원")),
				base + "?page=3": listing(),
			}}
		}
	})

	d := descriptor("yanggu", base)
	d.Pagination = mall.Pagination{MaxPages: 5}

	sum, err := c.Run(context.Background(), []mall.Descriptor{d})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Scraped)
	assert.Equal(t, 3, sum.Malls[0].Pages)
	assert.Equal(t, int32(3), calls.Load())
}

// TestRun_Replace verifies that replace mode drops a mall's vanished
// products and leaves other malls alone.
func TestRun_Replace(t *testing.T) {
	a := "https://a.example/"
	b := "https://b.example/"
	pages := map[string]string{
		a: listing(card("1", "철원 오대쌀 10kg", "32,000원"), card("2", "철원 잡곡 세트", "18,000원")),
		b: listing(card("9", "양구 시래기 500g", "8,900원")),
	}
	c, store := setupTestCollector(t, func(cfg *Config) {
		cfg.NewFetcher = func(fetch.Options) fetch.Fetcher { return fakeFetcher{pages: pages} }
	})
	malls := []mall.Descriptor{descriptor("a", a), descriptor("b", b)}

	_, err := c.Run(context.Background(), malls)
	require.NoError(t, err)

	pages[a] = listing(card("1", "철원 오대쌀 10kg", "32,000원"))
	delete(pages, b)
	c.config.Replace = true

	sum, err := c.Run(context.Background(), malls)
	require.NoError(t, err)
	assert.Equal(t, merge.ModeReplace, sum.Mode)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, 1, sum.Duplicates)

	products, err := catalog.ReadFile(store.Path())
	require.NoError(t, err)
	require.Len(t, products, 2, "mall b failed, so its entry is kept")
	perMall := map[string]int{}
	for _, p := range products {
		perMall[p.MallID]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, perMall)
}

// TestRun_DryRun verifies that nothing is written.
func TestRun_DryRun(t *testing.T) {
	base := "https://dry.example/"
	c, store := setupTestCollector(t, func(cfg *Config) {
		cfg.DryRun = true
		cfg.NewFetcher = func(fetch.Options) fetch.Fetcher {
			return fakeFetcher{pages: map[string]string{base: listing(card("1", "횡성 한우 등심", "89,000원"))}}
		}
	})

	sum, err := c.Run(context.Background(), []mall.Descriptor{descriptor("hoengseong", base)})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.New)
	assert.False(t, sum.Committed)
	assert.NoFileExists(t, store.Path())
}

// TestRun_CorruptCatalog verifies that an unreadable catalog aborts the run
// before any page is fetched.
func TestRun_CorruptCatalog(t *testing.T) {
	var calls atomic.Int32
	c, store := setupTestCollector(t, func(cfg *Config) {
		cfg.NewFetcher = func(fetch.Options) fetch.Fetcher { return fakeFetcher{calls: &calls} }
	})
	require.NoError(t, os.WriteFile(store.Path(), []byte(`[{"id": `), 0o600))

	_, err := c.Run(context.Background(), []mall.Descriptor{descriptor("a", "https://a.example/")})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, catalog.ErrCorrupt)
	assert.Zero(t, calls.Load())

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, `[{"id": `, string(data), "corrupt catalog is never overwritten")
}

// TestRun_Parallel verifies that bounded parallel collection gives the same
// result, in mall order, as a sequential run.
func TestRun_Parallel(t *testing.T) {
	pages := map[string]string{}
	var malls []mall.Descriptor
	for i := 0; i < 6; i++ {
		base := fmt.Sprintf("https://m%d.example/", i)
		pages[base] = listing(
			card(fmt.Sprintf("%d1", i), fmt.Sprintf("특산품 %d호 세트", i), "15,000원"),
			card(fmt.Sprintf("%d2", i), fmt.Sprintf("특산품 %d호 선물", i), "25,000원"),
		)
		malls = append(malls, descriptor(fmt.Sprintf("m%d", i), base))
	}
	newFetcher := func(fetch.Options) fetch.Fetcher { return fakeFetcher{pages: pages} }

	seq, seqStore := setupTestCollector(t, func(cfg *Config) { cfg.NewFetcher = newFetcher })
	par, parStore := setupTestCollector(t, func(cfg *Config) {
		cfg.NewFetcher = newFetcher
		cfg.Concurrency = 3
	})

	s1, err := seq.Run(context.Background(), malls)
	require.NoError(t, err)
	s2, err := par.Run(context.Background(), malls)
	require.NoError(t, err)

	assert.Equal(t, s1.New, s2.New)
	require.Len(t, s2.Malls, 6)
	for i, m := range s2.Malls {
		assert.Equal(t, malls[i].ID, m.MallID)
	}

	p1, err := catalog.ReadFile(seqStore.Path())
	require.NoError(t, err)
	p2, err := catalog.ReadFile(parStore.Path())
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

// TestRun_Cancelled verifies that a cancelled run commits nothing.
func TestRun_Cancelled(t *testing.T) {
	base := "https://slow.example/"
	c, store := setupTestCollector(t, func(cfg *Config) {
		cfg.NewFetcher = func(fetch.Options) fetch.Fetcher {
			return fakeFetcher{pages: map[string]string{base: listing(card("1", "횡성 한우 등심", "89,000원"))}}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, []mall.Descriptor{descriptor("slow", base)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsFatal(err))
	assert.NoFileExists(t, store.Path())
}
