package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/mallfed/mall"
)

// Attributes tried, in order, when an image selector names no attribute.
// Lazy-loading shops park the real URL in a data attribute and put a
// placeholder in src.
var imageAttrs = []string{"data-original", "data-src", "data-lazy-src", "src"}

// cardSelector finds the product card around an element for "^" selectors.
const cardSelector = "li, .product, .product-item, .goods, .goods-item, .item, .prd-item"

var (
	currencyPattern   = regexp.MustCompile(`₩\s*\d[\d,]*|\d[\d,]*\s*원`)
	backgroundPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	attrNamePattern   = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9_:.]*$`)
)

type fieldKind int

const (
	textField fieldKind = iota
	imageField
)

// extractHTML applies a container strategy. A container missing a name or
// a price is dropped on its own without failing the strategy.
func extractHTML(doc *goquery.Document, pageURL string, s mall.Strategy) []Candidate {
	var out []Candidate

	doc.Find(s.Container).Each(func(_ int, card *goquery.Selection) {
		c := Candidate{
			SourceURL:     pageURL,
			Name:          firstMatch(card, s.Fields.Name, textField),
			Price:         firstMatch(card, s.Fields.Price, textField),
			OriginalPrice: firstMatch(card, s.Fields.OriginalPrice, textField),
			ImageRef:      firstMatch(card, s.Fields.Image, imageField),
			LinkRef:       firstMatch(card, s.Fields.Link, textField),
			CategoryHint:  firstMatch(card, s.Fields.Category, textField),
			NativeID:      firstMatch(card, s.Fields.ID, textField),
		}
		if c.Name == "" || c.Price == "" {
			return
		}
		out = append(out, c)
	})

	return dedupe(out)
}

// firstMatch returns the first non-empty value produced by the selectors.
func firstMatch(card *goquery.Selection, selectors []string, kind fieldKind) string {
	for _, sel := range selectors {
		if v := evalSelector(card, sel, kind); v != "" {
			return v
		}
	}
	return ""
}

func evalSelector(card *goquery.Selection, sel string, kind fieldKind) string {
	scope := card
	if strings.HasPrefix(sel, "^") {
		scope = enclosingCard(card)
		sel = sel[1:]
	}

	switch sel {
	case "":
		return ""
	case "$text":
		return cleanText(scope.Text())
	case "$currency":
		return findCurrency(scope)
	}

	if css, attr, ok := splitAttr(sel); ok {
		target := scope
		if css != "" {
			target = scope.Find(css).First()
		}
		return strings.TrimSpace(target.AttrOr(attr, ""))
	}

	matches := scope.Find(sel)
	if kind == imageField {
		var ref string
		matches.EachWithBreak(func(_ int, m *goquery.Selection) bool {
			ref = imageRef(m)
			return ref == ""
		})
		return ref
	}

	var text string
	matches.EachWithBreak(func(_ int, m *goquery.Selection) bool {
		text = cleanText(m.Text())
		return text == ""
	})
	return text
}

// splitAttr splits "css@attr". The attribute part must look like an
// attribute name so selectors such as a[href*="@"] are left alone.
func splitAttr(sel string) (string, string, bool) {
	i := strings.LastIndex(sel, "@")
	if i < 0 || !attrNamePattern.MatchString(sel[i+1:]) {
		return "", "", false
	}
	return strings.TrimSpace(sel[:i]), sel[i+1:], true
}

func enclosingCard(card *goquery.Selection) *goquery.Selection {
	if c := card.Parent().Closest(cardSelector); c.Length() > 0 {
		return c
	}
	return card.Parent()
}

// imageRef reads the first usable image reference from an element: a lazy
// attribute, src, or an inline background-image.
func imageRef(m *goquery.Selection) string {
	for _, attr := range imageAttrs {
		v := strings.TrimSpace(m.AttrOr(attr, ""))
		if v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if style, ok := m.Attr("style"); ok {
		if match := backgroundPattern.FindStringSubmatch(style); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

// findCurrency returns the own text of the first element, the scope
// included, whose direct text holds a currency-marked number.
func findCurrency(scope *goquery.Selection) string {
	var found string
	scope.AddSelection(scope.Find("*")).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		own := ownText(el)
		if currencyPattern.MatchString(own) {
			found = own
			return false
		}
		return true
	})
	return found
}

// ownText is the element's direct text, without its children's.
func ownText(el *goquery.Selection) string {
	var b strings.Builder
	el.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
			b.WriteByte(' ')
		}
	})
	return cleanText(b.String())
}
