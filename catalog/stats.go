package catalog

// Stats are catalog-wide counts.
type Stats struct {
	TotalProducts int            `json:"totalProducts"`
	Malls         int            `json:"malls"`
	Categories    map[string]int `json:"categories"`
	Regions       map[string]int `json:"regions"`
	PerMall       map[string]int `json:"perMall"`
	Discounted    int            `json:"discounted"`
	PriceMin      int64          `json:"priceMin"`
	PriceMax      int64          `json:"priceMax"`
}

// Summarize counts products by category, region and mall.
func Summarize(products []Product) Stats {
	stats := Stats{
		TotalProducts: len(products),
		Categories:    map[string]int{},
		Regions:       map[string]int{},
		PerMall:       map[string]int{},
	}
	for _, p := range products {
		stats.Categories[p.Category]++
		stats.Regions[p.Region]++
		stats.PerMall[p.MallID]++
		if p.OriginalPrice > p.Price {
			stats.Discounted++
		}
		if stats.PriceMin == 0 || p.Price < stats.PriceMin {
			stats.PriceMin = p.Price
		}
		if p.Price > stats.PriceMax {
			stats.PriceMax = p.Price
		}
	}
	stats.Malls = len(stats.PerMall)
	return stats
}
