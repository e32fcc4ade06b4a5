package normalize

import (
	"errors"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// productNamespace seeds the name-based UUIDs of products without a
// site-native id.
var productNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/pevans/mallfed/product"))

// Query parameters that carry a product number on common Korean shop
// platforms (Cafe24, Godomall, Youngcart, MakeShop and friends).
var defaultIDParams = []string{
	"product_no", "goodsNo", "goodsno", "goods_no", "it_id", "branduid",
	"prdNo", "pdt_no", "itemId", "no", "idx", "id", "pid",
}

var pathIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/product/[^/]+/(\d+)(?:/|$)`),
	regexp.MustCompile(`/(?:products?|goods|items?|shop)/(?:view/|detail/)?(\d+)(?:/|$|\.)`),
}

var errUnusableURL = errors.New("unusable URL")

// resolveURL makes ref absolute against base. Protocol-relative references
// are upgraded to https. Script and mail links are unusable.
func resolveURL(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "data:") || ref == "#" {
		return "", errUnusableURL
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errUnusableURL
	}
	u.Fragment = ""
	return u.String(), nil
}

// nativeID finds the site's own product number: an explicit value from the
// extractor, a known query parameter, or a numeric path segment.
func nativeID(explicit, productURL string, params []string) string {
	if id := sanitizeID(explicit); id != "" {
		return id
	}

	u, err := url.Parse(productURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, p := range slices.Concat(params, defaultIDParams) {
		if id := sanitizeID(q.Get(p)); id != "" {
			return id
		}
	}
	for _, re := range pathIDPatterns {
		if m := re.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	}
	return ""
}

// productID derives the stable catalog id. With a native id it is
// "<mall>-<native>"; otherwise a name-based UUID of the mall, the folded
// title and the product URL's path and query, so the same listing maps to
// the same id on every run and same-titled listings stay apart.
func productID(mallID, native, title, productURL string) string {
	if native != "" {
		return mallID + "-" + native
	}
	name := mallID + "\x00" + titleKey(title) + "\x00" + listingPath(productURL)
	return mallID + "-" + uuid.NewSHA1(productNamespace, []byte(name)).String()
}

// listingPath is the part of a product URL that identifies the listing on
// its host. Scheme and host are left out so an http to https move keeps ids.
func listingPath(productURL string) string {
	u, err := url.Parse(productURL)
	if err != nil {
		return productURL
	}
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

// titleKey folds a title to lowercase letters and digits.
func titleKey(title string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(strings.ToLower(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sanitizeID(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
