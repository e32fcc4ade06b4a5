package mall

import (
	"net/url"
	"strings"
)

// Known platforms. Anything not recognised is treated as generic.
const (
	PlatformGeneric    = "generic"
	PlatformCafe24     = "cafe24"
	PlatformGodomall   = "godomall"
	PlatformSmartstore = "smartstore"
	PlatformCyso       = "cyso"
	PlatformJejumall   = "jejumall"
)

// DetectPlatform guesses the shop platform from the mall URL.
func DetectPlatform(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlatformGeneric
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.HasSuffix(host, "smartstore.naver.com"):
		return PlatformSmartstore
	case strings.HasSuffix(host, "cyso.co.kr"):
		return PlatformCyso
	case strings.HasSuffix(host, "jejumall.kr"):
		return PlatformJejumall
	case strings.HasSuffix(host, "cafe24.com"):
		return PlatformCafe24
	case strings.HasSuffix(host, "godomall.com"):
		return PlatformGodomall
	default:
		return PlatformGeneric
	}
}

var (
	defaultNames  = []string{".name", ".title", ".subject", ".item_name", ".prd_name", "h3", "h4", "strong", "img@alt", "@title", "$text"}
	defaultPrices = []string{".price", ".cost", ".amount", ".item_price", ".sale_price", "$currency"}
	defaultImages = []string{"img"}
	defaultLinks  = []string{"a@href", "@href"}
)

// withHTMLDefaults fills empty selector lists with the generic card
// selectors.
func (f Fields) withHTMLDefaults() Fields {
	if len(f.Name) == 0 {
		f.Name = defaultNames
	}
	if len(f.Price) == 0 {
		f.Price = defaultPrices
	}
	if len(f.Image) == 0 {
		f.Image = defaultImages
	}
	if len(f.Link) == 0 {
		f.Link = defaultLinks
	}
	return f
}

// PresetStrategies returns the built-in strategy list for a platform.
// Specific layouts come first, the broad anchor scans last.
func PresetStrategies(platform string) []Strategy {
	var specific []Strategy

	switch platform {
	case PlatformCafe24:
		specific = []Strategy{{
			Name:      "cafe24-product-list",
			Container: "ul.prdList > li, .xans-product-listnormal li.xans-record-",
			Fields: Fields{
				Name:  []string{".name a span:last-child", ".name a", ".name"},
				Price: []string{"li[rel='판매가'] span", ".price", "$currency"},
				Image: []string{".thumbnail img", "img"},
				Link:  []string{".name a@href", ".thumbnail a@href", "a@href"},
			},
		}}
	case PlatformGodomall:
		specific = []Strategy{{
			Name:      "godomall-goods-list",
			Container: ".item_gallery_type li, .goods_list_cont li, .goods_list li",
			Fields: Fields{
				Name:          []string{".item_name", ".item_tit_box strong", ".goods_name"},
				Price:         []string{".item_price strong", ".item_money_box strong", ".price", "$currency"},
				OriginalPrice: []string{".item_money_box del", ".fixed_price"},
				Image:         []string{".item_photo_box img", "img"},
				Link:          []string{".item_photo_box a@href", "a@href"},
			},
		}}
	case PlatformSmartstore:
		specific = []Strategy{{
			Name:      "smartstore-product-list",
			Container: ".ProductList_item__2BpPC, li[class*='ProductList_item']",
			Fields: Fields{
				Name:  []string{".ProductList_name__3k7PQ", ".product-name", "img@alt"},
				Price: []string{".ProductList_price__3k7PQ", ".price", "$currency"},
				Image: defaultImages,
				Link:  defaultLinks,
			},
		}}
	case PlatformCyso:
		specific = []Strategy{{
			Name:      "cyso-goods-list",
			Container: ".product-item, .goods-item, .item",
			Fields: Fields{
				Name:  []string{".title", ".name", "h3", "h4", "img@alt"},
				Price: []string{".price", ".cost", "$currency"},
				Image: defaultImages,
				Link:  defaultLinks,
			},
		}}
	case PlatformJejumall:
		specific = []Strategy{{
			Name:      "jejumall-goods-list",
			Container: ".product, .goods, .item",
			Fields: Fields{
				Name:  []string{".subject", ".title", ".name", "img@alt"},
				Price: []string{".price", ".cost", "$currency"},
				Image: defaultImages,
				Link:  defaultLinks,
			},
		}}
	}

	return append(specific, genericStrategies()...)
}

func genericStrategies() []Strategy {
	cards := Fields{Name: defaultNames, Price: defaultPrices, Image: defaultImages, Link: defaultLinks}
	anchors := Fields{
		Name:  []string{"img@alt", "@title", "$text"},
		Price: []string{"$currency", "^.price", "^.cost", "^$currency"},
		Image: []string{"img", "^img"},
		Link:  []string{"@href"},
	}

	return []Strategy{
		{Name: "product-cards", Container: ".product-item, .goods-item, .prd-item, .item_cont, li.product", Fields: cards},
		{Name: "product-links", Container: `a[href*="/product/"], a[href*="/goods/"], a[href*="/shop/"], a[href*="/item/"]`, Fields: anchors},
		{Name: "loose-items", Container: ".product, .goods, .item", Fields: cards},
	}
}
