package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestProduct_SameContent verifies that timestamps and tag order do not
// count as changes.
func TestProduct_SameContent(t *testing.T) {
	a := sampleProduct("a", "https://cwmall.kr/p/1")
	b := a
	b.LastVerified = a.LastVerified.Add(24 * time.Hour)
	b.CreatedAt = time.Time{}
	b.Tags = []string{"철원몰", "강원", "강원"}
	assert.True(t, a.SameContent(b))

	b.Price = 31000
	assert.False(t, a.SameContent(b))

	c := a
	c.Tags = append([]string{"신상"}, a.Tags...)
	assert.False(t, a.SameContent(c))
}

// TestProduct_Key verifies the URL-then-id dedup key.
func TestProduct_Key(t *testing.T) {
	p := sampleProduct("a", "https://cwmall.kr/p/1")
	assert.Equal(t, "https://cwmall.kr/p/1", p.Key())

	p.ProductURL = ""
	assert.Equal(t, "a", p.Key())
}

// TestVerify verifies that each invariant violation is reported.
func TestVerify(t *testing.T) {
	assert.Empty(t, Verify([]Product{
		sampleProduct("a", "https://cwmall.kr/p/1"),
		sampleProduct("b", "https://cwmall.kr/p/2"),
	}))

	bad := []Product{
		sampleProduct("a", "https://cwmall.kr/p/1"),
		sampleProduct("a", "https://cwmall.kr/p/2"),
		sampleProduct("c", "/p/3"),
		sampleProduct("d", "https://cwmall.kr/p/1"),
		{ID: "", Title: " ", Price: 0, ProductURL: "https://cwmall.kr/p/5", ImageURL: "img/5.jpg"},
	}
	violations := Verify(bad)

	reasons := map[int][]string{}
	for _, v := range violations {
		reasons[v.Index] = append(reasons[v.Index], v.Reason)
	}
	assert.Contains(t, reasons[1], "duplicate id (also entry 0)")
	assert.Len(t, reasons[2], 1)
	assert.Contains(t, reasons[3], "duplicate product URL (also entry 0)")
	assert.Len(t, reasons[4], 4, "empty id, empty title, price and image")
}

// TestSummarize verifies catalog-wide counts.
func TestSummarize(t *testing.T) {
	a := sampleProduct("a", "https://cwmall.kr/p/1")
	b := sampleProduct("b", "https://cwmall.kr/p/2")
	b.Price = 8900
	b.OriginalPrice = 12000
	c := sampleProduct("c", "https://wando.example/p/3")
	c.MallID = "wando"
	c.Region = "전남"
	c.Category = "seafood"
	c.Price = 55000

	stats := Summarize([]Product{a, b, c})
	assert.Equal(t, 3, stats.TotalProducts)
	assert.Equal(t, 2, stats.Malls)
	assert.Equal(t, map[string]int{"cheorwon": 2, "wando": 1}, stats.PerMall)
	assert.Equal(t, map[string]int{"agricultural": 2, "seafood": 1}, stats.Categories)
	assert.Equal(t, map[string]int{"강원": 2, "전남": 1}, stats.Regions)
	assert.Equal(t, 1, stats.Discounted)
	assert.Equal(t, int64(8900), stats.PriceMin)
	assert.Equal(t, int64(55000), stats.PriceMax)

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalProducts)
	assert.Zero(t, empty.PriceMin)
}

// TestFilter verifies each filter field and the title-or-tag query.
func TestFilter(t *testing.T) {
	rice := sampleProduct("rice", "https://cwmall.kr/p/1")
	beef := sampleProduct("beef", "https://cwmall.kr/p/2")
	beef.Title = "철원 한우 선물세트"
	beef.Category = "livestock"
	beef.Price = 120000
	beef.Tags = []string{"한우", "Gift"}
	products := []Product{rice, beef}

	ids := func(ps []Product) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []string{"rice", "beef"}, ids(Filter{}.Apply(products)))
	assert.Equal(t, []string{"beef"}, ids(Filter{Category: "livestock"}.Apply(products)))
	assert.Equal(t, []string{"rice"}, ids(Filter{MaxPrice: 50000}.Apply(products)))
	assert.Equal(t, []string{"beef"}, ids(Filter{MinPrice: 50000}.Apply(products)))
	assert.Equal(t, []string{"rice"}, ids(Filter{Query: "오대쌀"}.Apply(products)))
	assert.Equal(t, []string{"beef"}, ids(Filter{Query: "gift"}.Apply(products)))
	assert.Empty(t, Filter{MallID: "wando"}.Apply(products))
	assert.NotNil(t, Filter{MallID: "wando"}.Apply(products))
}
