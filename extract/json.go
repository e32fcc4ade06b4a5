package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/mallfed/mall"
)

// Keys tried when a json strategy leaves a field list empty.
var (
	jsonNameKeys          = []string{"name", "goodsNm", "goodsName", "productName", "prdName", "title", "displayName"}
	jsonPriceKeys         = []string{"salePrice", "sellPrice", "goodsPrice", "price", "discountPrice", "currentPrice", "amount"}
	jsonOriginalPriceKeys = []string{"originalPrice", "fixedPrice", "consumerPrice", "listPrice", "regularPrice"}
	jsonImageKeys         = []string{"image", "imageUrl", "img", "imgUrl", "thumbnail", "thumbnailUrl", "listImage"}
	jsonLinkKeys          = []string{"url", "link", "productUrl", "detailUrl", "href"}
	jsonCategoryKeys      = []string{"category", "categoryName", "cateNm"}
	jsonIDKeys            = []string{"id", "goodsNo", "productNo", "product_no", "itemId", "sku"}
)

// extractJSON reads a JSON API response.
func extractJSON(page *Page, s mall.Strategy) ([]Candidate, error) {
	var root any
	if err := json.Unmarshal(page.Body, &root); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return candidatesFromJSON(root, page.URL, s)
}

// extractScript finds a JSON literal embedded in a <script> tag and reads it
// like an API response. The first script whose text matches the pattern and
// decodes is used.
func extractScript(page *Page, s mall.Strategy) ([]Candidate, error) {
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script pattern: %w", err)
	}

	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	var root any
	var decodeErr error
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		m := re.FindStringSubmatch(script.Text())
		if m == nil {
			return true
		}
		if err := json.Unmarshal([]byte(m[1]), &root); err != nil {
			decodeErr = err
			root = nil
			return true
		}
		return false
	})

	if root == nil {
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode embedded JSON: %w", decodeErr)
		}
		return nil, nil
	}
	return candidatesFromJSON(root, page.URL, s)
}

func candidatesFromJSON(root any, pageURL string, s mall.Strategy) ([]Candidate, error) {
	f := s.Fields
	nameKeys := orDefault(f.Name, jsonNameKeys)
	priceKeys := orDefault(f.Price, jsonPriceKeys)

	var items []map[string]any
	if s.Items != "" {
		node, ok := lookupPath(root, s.Items)
		if !ok {
			return nil, fmt.Errorf("path %q not found", s.Items)
		}
		arr, ok := node.([]any)
		if !ok {
			return nil, fmt.Errorf("path %q is not an array", s.Items)
		}
		for _, el := range arr {
			if obj, ok := el.(map[string]any); ok {
				items = append(items, obj)
			}
		}
	} else {
		walkObjects(root, func(obj map[string]any) {
			if pickString(obj, nameKeys) != "" && pickString(obj, priceKeys) != "" {
				items = append(items, obj)
			}
		})
	}

	var out []Candidate
	for _, obj := range items {
		c := Candidate{
			SourceURL:     pageURL,
			Name:          cleanText(pickString(obj, nameKeys)),
			Price:         pickString(obj, priceKeys),
			OriginalPrice: pickString(obj, orDefault(f.OriginalPrice, jsonOriginalPriceKeys)),
			ImageRef:      pickString(obj, orDefault(f.Image, jsonImageKeys)),
			LinkRef:       pickString(obj, orDefault(f.Link, jsonLinkKeys)),
			CategoryHint:  pickString(obj, orDefault(f.Category, jsonCategoryKeys)),
			NativeID:      pickString(obj, orDefault(f.ID, jsonIDKeys)),
		}
		if c.Name == "" || c.Price == "" {
			continue
		}
		out = append(out, c)
	}

	return dedupe(out), nil
}

func orDefault(keys, fallback []string) []string {
	if len(keys) == 0 {
		return fallback
	}
	return keys
}

// lookupPath follows a dot path such as "data.goodsList" or "result.0.items".
func lookupPath(node any, path string) (any, bool) {
	for _, part := range strings.Split(path, ".") {
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			node = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			node = v[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// walkObjects visits every object in the tree, parents before children.
// Objects accepted by visit are still descended into; nested option
// objects rarely carry both a name and a price.
func walkObjects(node any, visit func(map[string]any)) {
	switch v := node.(type) {
	case map[string]any:
		visit(v)
		for _, child := range sortedValues(v) {
			walkObjects(child, visit)
		}
	case []any:
		for _, child := range v {
			walkObjects(child, visit)
		}
	}
}

// sortedValues returns map values ordered by key so walks are deterministic.
func sortedValues(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

// pickString returns the first key with a usable scalar value. Keys may be
// dotted to reach into nested objects ("price.sale").
func pickString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := lookupPath(obj, k)
		if !ok {
			continue
		}
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
