package mall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDescriptor() Descriptor {
	return Descriptor{ID: "cheorwon", Name: "철원몰", Region: "강원", BaseURL: "https://cwmall.kr"}
}

// TestDescriptor_Validate verifies the rejection rules for descriptors.
func TestDescriptor_Validate(t *testing.T) {
	require.NoError(t, validDescriptor().Validate())

	tests := []struct {
		name   string
		mutate func(*Descriptor)
	}{
		{"uppercase id", func(d *Descriptor) { d.ID = "Cheorwon" }},
		{"empty name", func(d *Descriptor) { d.Name = " " }},
		{"relative base", func(d *Descriptor) { d.BaseURL = "/shop" }},
		{"ftp base", func(d *Descriptor) { d.BaseURL = "ftp://cwmall.kr" }},
		{"negative multiplier", func(d *Descriptor) { d.Pricing.Multiplier = -1 }},
		{"html without container", func(d *Descriptor) { d.Strategies = []Strategy{{Name: "x"}} }},
		{"script without group", func(d *Descriptor) {
			d.Strategies = []Strategy{{Name: "x", Kind: KindScript, Pattern: `var data = \{.*\}`}}
		}},
		{"unknown kind", func(d *Descriptor) { d.Strategies = []Strategy{{Name: "x", Kind: "xml"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDescriptor()
			tt.mutate(&d)
			err := d.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
		})
	}
}

// TestDescriptor_WithDefaults verifies that unset knobs are filled and
// presets are used when no strategies are configured.
func TestDescriptor_WithDefaults(t *testing.T) {
	d := validDescriptor().WithDefaults()

	assert.Equal(t, []string{"https://cwmall.kr"}, d.ListingURLs)
	assert.Equal(t, 1, d.Pagination.MaxPages)
	assert.Equal(t, "page", d.Pagination.Param)
	assert.Equal(t, "KRW", d.Pricing.Currency)
	assert.Equal(t, 1000, d.Pricing.TruncationThreshold)
	assert.Equal(t, 1000, d.Pricing.Multiplier)
	assert.Equal(t, PlatformGeneric, d.Platform)
	require.NotEmpty(t, d.Strategies)
	for _, s := range d.Strategies {
		assert.Equal(t, KindHTML, s.Kind)
		assert.Equal(t, DefaultMinProducts, s.MinProducts)
		assert.NotEmpty(t, s.Fields.Name)
		assert.NotEmpty(t, s.Fields.Link)
	}
}

// TestDescriptor_WithDefaults_NonKRW verifies that the truncation heuristic
// is off by default for other currencies.
func TestDescriptor_WithDefaults_NonKRW(t *testing.T) {
	d := validDescriptor()
	d.Pricing.Currency = "USD"
	d = d.WithDefaults()
	assert.Equal(t, 0, d.Pricing.TruncationThreshold)
}

// TestDescriptor_WithDefaults_StrategyMin verifies that a strategy keeps its
// own threshold and inherits the mall threshold otherwise.
func TestDescriptor_WithDefaults_StrategyMin(t *testing.T) {
	d := validDescriptor()
	d.MinProducts = 2
	d.Strategies = []Strategy{
		{Name: "strict", Container: "li", MinProducts: 5},
		{Name: "loose", Container: "div"},
	}
	d = d.WithDefaults()
	assert.Equal(t, 5, d.Strategies[0].MinProducts)
	assert.Equal(t, 2, d.Strategies[1].MinProducts)
}

// TestDescriptor_ResolveListingURLs verifies resolution against the base URL.
func TestDescriptor_ResolveListingURLs(t *testing.T) {
	d := validDescriptor()
	d.BaseURL = "https://cwmall.kr/shop/"
	d.ListingURLs = []string{"list.php?cate=1", "/goods/all", "https://other.kr/x"}

	urls, err := d.ResolveListingURLs()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cwmall.kr/shop/list.php?cate=1",
		"https://cwmall.kr/goods/all",
		"https://other.kr/x",
	}, urls)
}

// TestDescriptor_PageURL verifies the page parameter handling.
func TestDescriptor_PageURL(t *testing.T) {
	d := validDescriptor().WithDefaults()

	first, err := d.PageURL("https://cwmall.kr/list?cate=1", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://cwmall.kr/list?cate=1", first)

	third, err := d.PageURL("https://cwmall.kr/list?cate=1", 3)
	require.NoError(t, err)
	assert.Equal(t, "https://cwmall.kr/list?cate=1&page=3", third)
}

// TestDetectPlatform verifies host-based platform detection.
func TestDetectPlatform(t *testing.T) {
	assert.Equal(t, PlatformSmartstore, DetectPlatform("https://smartstore.naver.com/cwmall"))
	assert.Equal(t, PlatformCyso, DetectPlatform("https://gmall.cyso.co.kr"))
	assert.Equal(t, PlatformJejumall, DetectPlatform("https://www.jejumall.kr"))
	assert.Equal(t, PlatformCafe24, DetectPlatform("https://shop.cafe24.com"))
	assert.Equal(t, PlatformGeneric, DetectPlatform("https://cwmall.kr"))
	assert.Equal(t, PlatformGeneric, DetectPlatform("::bad"))
}
