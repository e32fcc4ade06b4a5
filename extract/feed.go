package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/pevans/mallfed/mall"
)

// Keys tried when a feed strategy leaves a field list empty. "prefix:name"
// reads a namespaced extension such as Google Merchant's g:price; bare
// names read the item itself.
var (
	feedPriceKeys         = []string{"g:sale_price", "g:price", "description"}
	feedOriginalPriceKeys = []string{"g:price"}
	feedImageKeys         = []string{"g:image_link", "image"}
	feedIDKeys            = []string{"g:id", "guid"}
	feedCategoryKeys      = []string{"g:product_type", "category"}
)

// extractFeed reads an RSS or Atom product feed. gofeed normalizes both
// formats into one item structure.
func extractFeed(page *Page, s mall.Strategy) ([]Candidate, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	f := s.Fields
	var out []Candidate
	for _, item := range feed.Items {
		c := Candidate{
			SourceURL:     page.URL,
			Name:          cleanText(feedValue(item, orDefault(f.Name, []string{"title"}))),
			Price:         feedValue(item, orDefault(f.Price, feedPriceKeys)),
			OriginalPrice: feedValue(item, orDefault(f.OriginalPrice, feedOriginalPriceKeys)),
			ImageRef:      feedValue(item, orDefault(f.Image, feedImageKeys)),
			LinkRef:       feedValue(item, orDefault(f.Link, []string{"link"})),
			CategoryHint:  feedValue(item, orDefault(f.Category, feedCategoryKeys)),
			NativeID:      feedValue(item, orDefault(f.ID, feedIDKeys)),
		}
		if c.Name == "" || c.Price == "" {
			continue
		}
		out = append(out, c)
	}

	return dedupe(out), nil
}

func feedValue(item *gofeed.Item, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(feedField(item, k)); v != "" {
			return v
		}
	}
	return ""
}

func feedField(item *gofeed.Item, key string) string {
	if prefix, name, ok := strings.Cut(key, ":"); ok {
		for _, e := range item.Extensions[prefix][name] {
			if e.Value != "" {
				return e.Value
			}
		}
		return ""
	}

	switch key {
	case "title":
		return item.Title
	case "link":
		return item.Link
	case "guid":
		return item.GUID
	case "category":
		if len(item.Categories) > 0 {
			return item.Categories[0]
		}
	case "description":
		// Shops without merchant extensions put the price in the body.
		return currencyPattern.FindString(htmlText(item.Description))
	case "image":
		if item.Image != nil && item.Image.URL != "" {
			return item.Image.URL
		}
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				return enc.URL
			}
		}
		return firstImage(item.Description + item.Content)
	}
	return ""
}

func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return cleanText(doc.Text())
}

func firstImage(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	var ref string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		ref = imageRef(img)
		return ref == ""
	})
	return ref
}
