package catalog

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Product is one canonical catalog entry. The JSON layout is what the
// storefront reads.
type Product struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Price         int64     `json:"price"`
	OriginalPrice int64     `json:"originalPrice,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	ProductURL    string    `json:"productUrl"`
	Category      string    `json:"category"`
	MallID        string    `json:"mallId"`
	MallName      string    `json:"mallName"`
	Region        string    `json:"region"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"createdAt"`
	LastVerified  time.Time `json:"lastVerified"`
}

// Key returns the dedup key: the product URL, or the id when a legacy entry
// has no URL.
func (p Product) Key() string {
	if p.ProductURL != "" {
		return p.ProductURL
	}
	return p.ID
}

// SameContent reports whether two records carry the same data. Timestamps
// are bookkeeping and tags are compared as sets.
func (p Product) SameContent(o Product) bool {
	if p.ID != o.ID || p.Title != o.Title || p.Price != o.Price ||
		p.OriginalPrice != o.OriginalPrice || p.ImageURL != o.ImageURL ||
		p.ProductURL != o.ProductURL || p.Category != o.Category ||
		p.MallID != o.MallID || p.MallName != o.MallName || p.Region != o.Region {
		return false
	}
	return slices.Equal(sortedTags(p.Tags), sortedTags(o.Tags))
}

func sortedTags(tags []string) []string {
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

// Violation describes a catalog entry that breaks an invariant.
type Violation struct {
	Index  int
	ID     string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("entry %d (%s): %s", v.Index, v.ID, v.Reason)
}

// Verify checks every invariant of a catalog: non-empty unique ids,
// non-empty titles, positive prices, absolute http(s) URLs and no two
// entries sharing a product URL.
func Verify(products []Product) []Violation {
	var out []Violation
	ids := make(map[string]int, len(products))
	urls := make(map[string]int, len(products))

	for i, p := range products {
		add := func(reason string) {
			out = append(out, Violation{Index: i, ID: p.ID, Reason: reason})
		}

		if p.ID == "" {
			add("empty id")
		} else if j, dup := ids[p.ID]; dup {
			add(fmt.Sprintf("duplicate id (also entry %d)", j))
		} else {
			ids[p.ID] = i
		}

		if strings.TrimSpace(p.Title) == "" {
			add("empty title")
		}
		if p.Price <= 0 {
			add(fmt.Sprintf("non-positive price %d", p.Price))
		}
		if !isAbsoluteHTTP(p.ProductURL) {
			add(fmt.Sprintf("product URL %q is not absolute", p.ProductURL))
		} else if j, dup := urls[p.ProductURL]; dup {
			add(fmt.Sprintf("duplicate product URL (also entry %d)", j))
		} else {
			urls[p.ProductURL] = i
		}
		if p.ImageURL != "" && !isAbsoluteHTTP(p.ImageURL) {
			add(fmt.Sprintf("image URL %q is not absolute", p.ImageURL))
		}
	}

	return out
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
