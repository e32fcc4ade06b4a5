package mall

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Strategy kinds. An html strategy walks item containers with CSS selectors,
// json walks a decoded JSON response, script pulls a JSON literal out of a
// <script> tag, and feed reads an RSS/Atom product feed.
const (
	KindHTML   = "html"
	KindJSON   = "json"
	KindScript = "script"
	KindFeed   = "feed"
)

// Defaults applied by WithDefaults.
const (
	DefaultCurrency            = "KRW"
	DefaultTruncationThreshold = 1000
	DefaultMultiplier          = 1000
	DefaultMinProducts         = 1
	DefaultPageParam           = "page"
)

// ErrInvalidDescriptor is wrapped by every validation failure.
var ErrInvalidDescriptor = errors.New("invalid mall descriptor")

// Descriptor describes one regional mall: where to fetch it, how to extract
// products from it, and the per-mall knobs the normalizer honours.
type Descriptor struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Region      string   `yaml:"region" json:"region"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	BaseURL     string   `yaml:"baseUrl" json:"baseUrl"`
	ListingURLs []string `yaml:"listingUrls,omitempty" json:"listingUrls,omitempty"`
	Platform    string   `yaml:"platform,omitempty" json:"platform,omitempty"`
	Disabled    bool     `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	Fetch      FetchOptions `yaml:"fetch,omitempty" json:"fetch,omitempty"`
	Pagination Pagination   `yaml:"pagination,omitempty" json:"pagination,omitempty"`
	Pricing    Pricing      `yaml:"pricing,omitempty" json:"pricing,omitempty"`

	// MinProducts is the yield a strategy must reach to win. Strategies
	// may override it.
	MinProducts int `yaml:"minProducts,omitempty" json:"minProducts,omitempty"`
	// MaxProducts caps the candidates kept per page (0 = unlimited).
	MaxProducts int        `yaml:"maxProducts,omitempty" json:"maxProducts,omitempty"`
	Strategies  []Strategy `yaml:"strategies,omitempty" json:"strategies,omitempty"`

	Denylist           []string `yaml:"denylist,omitempty" json:"denylist,omitempty"`
	IDParams           []string `yaml:"idParams,omitempty" json:"idParams,omitempty"`
	ProductURLTemplate string   `yaml:"productUrlTemplate,omitempty" json:"productUrlTemplate,omitempty"`
	DefaultCategory    string   `yaml:"defaultCategory,omitempty" json:"defaultCategory,omitempty"`
	Tags               []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// FetchOptions are per-mall overrides for the fetch adapter. Zero values fall
// back to the global fetch configuration.
type FetchOptions struct {
	Timeout      time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries      *int              `yaml:"retries,omitempty" json:"retries,omitempty"`
	InsecureTLS  bool              `yaml:"insecureTLS,omitempty" json:"insecureTLS,omitempty"`
	Encoding     string            `yaml:"encoding,omitempty" json:"encoding,omitempty"` // e.g. "euc-kr"
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Browser      bool              `yaml:"browser,omitempty" json:"browser,omitempty"`
	WaitSelector string            `yaml:"waitSelector,omitempty" json:"waitSelector,omitempty"`
}

// Pagination walks numbered listing pages through a query parameter.
// Paging stops at MaxPages or at the first page that yields nothing.
type Pagination struct {
	Param    string `yaml:"param,omitempty" json:"param,omitempty"`
	MaxPages int    `yaml:"maxPages,omitempty" json:"maxPages,omitempty"`
}

// Pricing controls price parsing. Prices strictly below
// TruncationThreshold are assumed to be displayed in thousands and are
// multiplied by Multiplier.
type Pricing struct {
	Currency            string `yaml:"currency,omitempty" json:"currency,omitempty"`
	TruncationThreshold int    `yaml:"truncationThreshold,omitempty" json:"truncationThreshold,omitempty"`
	Multiplier          int    `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	DisableHeuristic    bool   `yaml:"disableHeuristic,omitempty" json:"disableHeuristic,omitempty"`
}

// Strategy is one extraction attempt. Strategies are tried in order and the
// first one reaching its minimum yield wins.
type Strategy struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"` // default "html"

	// Container selects one element per product (html).
	Container string `yaml:"container,omitempty" json:"container,omitempty"`
	// Items is a dot path to the product array (json, script). Empty means
	// search the document for product-shaped objects.
	Items string `yaml:"items,omitempty" json:"items,omitempty"`
	// Pattern is a regular expression with one capture group holding a
	// JSON literal (script).
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	MinProducts int    `yaml:"minProducts,omitempty" json:"minProducts,omitempty"`
	Fields      Fields `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Fields lists, per product field, the selectors (html) or keys (json, feed)
// to try in order. For html a selector may carry an attribute suffix
// ("img@data-src"), "@attr" reads the container itself, "$text" is the
// container's own text and "$currency" finds the first descendant whose own
// text is a currency-suffixed number. A leading "^" evaluates the selector
// against the closest enclosing product card instead of the container.
type Fields struct {
	Name          []string `yaml:"name,omitempty" json:"name,omitempty"`
	Price         []string `yaml:"price,omitempty" json:"price,omitempty"`
	OriginalPrice []string `yaml:"originalPrice,omitempty" json:"originalPrice,omitempty"`
	Image         []string `yaml:"image,omitempty" json:"image,omitempty"`
	Link          []string `yaml:"link,omitempty" json:"link,omitempty"`
	Category      []string `yaml:"category,omitempty" json:"category,omitempty"`
	ID            []string `yaml:"id,omitempty" json:"id,omitempty"`
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks that the descriptor can be used for a run.
func (d Descriptor) Validate() error {
	if !idPattern.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q must be lowercase letters, digits, '-' or '_'", ErrInvalidDescriptor, d.ID)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: %s: name is required", ErrInvalidDescriptor, d.ID)
	}
	if err := validateAbsURL(d.BaseURL); err != nil {
		return fmt.Errorf("%w: %s: baseUrl: %v", ErrInvalidDescriptor, d.ID, err)
	}
	if d.Pricing.Multiplier < 0 || d.Pricing.TruncationThreshold < 0 {
		return fmt.Errorf("%w: %s: pricing values must not be negative", ErrInvalidDescriptor, d.ID)
	}
	if d.MinProducts < 0 || d.MaxProducts < 0 {
		return fmt.Errorf("%w: %s: product limits must not be negative", ErrInvalidDescriptor, d.ID)
	}

	for i, s := range d.Strategies {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: %s: strategy %d (%s): %v", ErrInvalidDescriptor, d.ID, i, s.Name, err)
		}
	}

	return nil
}

func (s Strategy) validate() error {
	switch s.kind() {
	case KindHTML:
		if s.Container == "" {
			return errors.New("html strategy needs a container selector")
		}
	case KindScript:
		if s.Pattern == "" {
			return errors.New("script strategy needs a pattern")
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("bad pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return errors.New("script pattern needs a capture group")
		}
	case KindJSON, KindFeed:
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.MinProducts < 0 {
		return errors.New("minProducts must not be negative")
	}
	return nil
}

func (s Strategy) kind() string {
	if s.Kind == "" {
		return KindHTML
	}
	return s.Kind
}

// WithDefaults returns a copy of the descriptor with every unset knob filled
// in. Descriptors without strategies get the preset for their platform.
func (d Descriptor) WithDefaults() Descriptor {
	out := d
	if out.Platform == "" {
		out.Platform = DetectPlatform(out.BaseURL)
	}
	if len(out.ListingURLs) == 0 {
		out.ListingURLs = []string{out.BaseURL}
	}
	if out.Pagination.MaxPages <= 0 {
		out.Pagination.MaxPages = 1
	}
	if out.Pagination.Param == "" {
		out.Pagination.Param = DefaultPageParam
	}
	if out.Pricing.Currency == "" {
		out.Pricing.Currency = DefaultCurrency
	}
	if out.Pricing.Multiplier == 0 {
		out.Pricing.Multiplier = DefaultMultiplier
	}
	if out.Pricing.TruncationThreshold == 0 && out.Pricing.Currency == DefaultCurrency {
		out.Pricing.TruncationThreshold = DefaultTruncationThreshold
	}
	if out.MinProducts == 0 {
		out.MinProducts = DefaultMinProducts
	}
	if len(out.Strategies) == 0 {
		out.Strategies = PresetStrategies(out.Platform)
	}

	strategies := make([]Strategy, len(out.Strategies))
	for i, s := range out.Strategies {
		s.Kind = s.kind()
		if s.MinProducts == 0 {
			s.MinProducts = out.MinProducts
		}
		if s.Kind == KindHTML {
			s.Fields = s.Fields.withHTMLDefaults()
		}
		strategies[i] = s
	}
	out.Strategies = strategies

	return out
}

// ResolveListingURLs returns the listing URLs made absolute against BaseURL.
func (d Descriptor) ResolveListingURLs() ([]string, error) {
	base, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	urls := make([]string, 0, len(d.ListingURLs))
	for _, raw := range d.ListingURLs {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse listing URL %q: %w", raw, err)
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	return urls, nil
}

// PageURL returns listing with the page parameter set. Page 1 is the
// listing URL itself.
func (d Descriptor) PageURL(listing string, page int) (string, error) {
	if page <= 1 {
		return listing, nil
	}
	u, err := url.Parse(listing)
	if err != nil {
		return "", fmt.Errorf("failed to parse listing URL: %w", err)
	}
	q := u.Query()
	q.Set(d.Pagination.Param, fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func validateAbsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
