package catalog

import "strings"

// Filter narrows a product listing. Zero values match everything.
type Filter struct {
	MallID   string
	Region   string
	Category string
	Query    string
	MinPrice int64
	MaxPrice int64
}

// Match reports whether p passes the filter. Query matches the title or any
// tag, case-insensitively.
func (f Filter) Match(p Product) bool {
	if f.MallID != "" && p.MallID != f.MallID {
		return false
	}
	if f.Region != "" && p.Region != f.Region {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice > 0 && p.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	if f.Query == "" {
		return true
	}

	q := strings.ToLower(f.Query)
	if strings.Contains(strings.ToLower(p.Title), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Apply returns the matching products in catalog order. The result is never
// nil.
func (f Filter) Apply(products []Product) []Product {
	out := make([]Product, 0)
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}
