// Package normalize turns raw extracted candidates into canonical catalog
// products, or rejects them with a reason.
package normalize

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/extract"
	"github.com/pevans/mallfed/mall"
	"golang.org/x/text/unicode/norm"
)

// Rejection reasons.
const (
	ReasonMissingTitle = "missing_title"
	ReasonShortTitle   = "short_title"
	ReasonDenylisted   = "denylisted_title"
	ReasonNoPrice      = "unparsable_price"
	ReasonZeroPrice    = "zero_price"
	ReasonMissingLink  = "missing_link"
)

// MinTitleRunes is the shortest title accepted.
const MinTitleRunes = 3

// DefaultDenylist holds navigation and menu labels that container selectors
// pick up on mall pages. Entries are compared after removing spaces and
// lowercasing.
var DefaultDenylist = []string{
	"전체상품", "전체보기", "상품목록", "상품전체", "카테고리", "로그인", "로그아웃", "회원가입",
	"장바구니", "마이페이지", "주문조회", "고객센터", "공지사항", "이벤트", "더보기", "이전", "다음",
	"베스트", "신상품", "추천상품", "인기상품", "바로가기", "상세보기", "구매하기", "검색", "메뉴", "홈",
	"home", "more", "login", "cart", "menu", "search", "prev", "next", "viewall",
}

// Error is a rejected candidate. It never aborts a run.
type Error struct {
	Reason string
	Field  string
	Value  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rejected %s: %s (%q)", e.Field, e.Reason, e.Value)
}

// Correction records a heuristic change to a price, for operator review.
type Correction struct {
	MallID     string `json:"mallId"`
	ProductID  string `json:"productId"`
	Title      string `json:"title"`
	Field      string `json:"field"`
	Raw        string `json:"raw"`
	Parsed     int64  `json:"parsed"`
	Corrected  int64  `json:"corrected"`
	Multiplier int    `json:"multiplier"`
}

// Result is an accepted product plus any heuristic corrections applied.
type Result struct {
	Product     catalog.Product
	Corrections []Correction
}

// Normalize validates a candidate and maps it into a canonical product for
// the given mall. The descriptor supplies the pricing heuristic, denylist
// and id parameters; now stamps createdAt and lastVerified. Normalize is
// pure: the same inputs always give the same output.
func Normalize(c extract.Candidate, d mall.Descriptor, now time.Time) (Result, error) {
	d = d.WithDefaults()

	title, err := normalizeTitle(c.Name, d.Denylist)
	if err != nil {
		return Result{}, err
	}

	price, listed, ok := parsePrice(c.Price)
	if !ok {
		return Result{}, &Error{Reason: ReasonNoPrice, Field: "price", Value: c.Price}
	}
	if price <= 0 {
		return Result{}, &Error{Reason: ReasonZeroPrice, Field: "price", Value: c.Price}
	}
	if listed == 0 && c.OriginalPrice != "" {
		if orig, _, ok := parsePrice(c.OriginalPrice); ok {
			listed = orig
		}
	}

	base := pageBase(c.SourceURL, d.BaseURL)

	link := c.LinkRef
	if strings.TrimSpace(link) == "" && c.NativeID != "" && d.ProductURLTemplate != "" {
		link = strings.ReplaceAll(d.ProductURLTemplate, "{id}", url.PathEscape(c.NativeID))
	}
	productURL, err := resolveURL(base, link)
	if err != nil || productURL == "" {
		return Result{}, &Error{Reason: ReasonMissingLink, Field: "productUrl", Value: c.LinkRef}
	}

	// Images are optional; an unusable one is dropped rather than failing
	// the record.
	imageURL, err := resolveURL(base, c.ImageRef)
	if err != nil {
		imageURL = ""
	}

	id := productID(d.ID, nativeID(c.NativeID, productURL, d.IDParams), title, productURL)
	category, keyword := categorize(c.CategoryHint, title, d)

	result := Result{}
	correct := func(field, raw string, v int64) int64 {
		fixed, changed := correctTruncation(v, d.Pricing)
		if changed {
			result.Corrections = append(result.Corrections, Correction{
				MallID:     d.ID,
				ProductID:  id,
				Title:      title,
				Field:      field,
				Raw:        raw,
				Parsed:     v,
				Corrected:  fixed,
				Multiplier: d.Pricing.Multiplier,
			})
		}
		return fixed
	}

	price = correct("price", c.Price, price)
	if listed > 0 {
		listed = correct("originalPrice", c.OriginalPrice, listed)
	}
	if listed <= price {
		listed = 0
	}

	now = now.UTC()
	result.Product = catalog.Product{
		ID:            id,
		Title:         title,
		Price:         price,
		OriginalPrice: listed,
		ImageURL:      imageURL,
		ProductURL:    productURL,
		Category:      category,
		MallID:        d.ID,
		MallName:      d.Name,
		Region:        d.Region,
		Tags:          buildTags(title, category, keyword, d),
		CreatedAt:     now,
		LastVerified:  now,
	}

	return result, nil
}

// normalizeTitle composes Hangul (NFC), drops control characters and
// collapses whitespace, then applies the length and denylist rules.
func normalizeTitle(raw string, extra []string) (string, error) {
	title := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, norm.NFC.String(raw))
	title = strings.Join(strings.Fields(title), " ")

	if title == "" {
		return "", &Error{Reason: ReasonMissingTitle, Field: "title", Value: raw}
	}
	if utf8.RuneCountInString(title) < MinTitleRunes {
		return "", &Error{Reason: ReasonShortTitle, Field: "title", Value: title}
	}
	if isDenylisted(title, extra) {
		return "", &Error{Reason: ReasonDenylisted, Field: "title", Value: title}
	}
	return title, nil
}

func isDenylisted(title string, extra []string) bool {
	key := denyKey(title)
	for _, list := range [][]string{DefaultDenylist, extra} {
		for _, w := range list {
			if key == denyKey(w) {
				return true
			}
		}
	}
	return false
}

func denyKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// pageBase is the URL relative references resolve against: the page the
// candidate came from, or the mall base when that is unknown.
func pageBase(sourceURL, baseURL string) *url.URL {
	for _, raw := range []string{sourceURL, baseURL} {
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}
