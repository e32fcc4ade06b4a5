package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/mallfed/mall"
)

// Candidate is an unvalidated product as it appeared on the page. Every
// field is raw text; the normalizer decides what it means.
type Candidate struct {
	SourceURL     string
	Name          string
	Price         string
	OriginalPrice string
	ImageRef      string
	LinkRef       string
	CategoryHint  string
	NativeID      string
}

// Page is one fetched document. The HTML tree is parsed on first use so
// that json and feed strategies never pay for it.
type Page struct {
	URL         string
	ContentType string
	Body        []byte

	doc    *goquery.Document
	docErr error
}

// NewPage wraps a fetched body.
func NewPage(url, contentType string, body []byte) *Page {
	return &Page{URL: url, ContentType: contentType, Body: body}
}

// Document returns the parsed HTML tree.
func (p *Page) Document() (*goquery.Document, error) {
	if p.doc == nil && p.docErr == nil {
		p.doc, p.docErr = goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
		if p.docErr != nil {
			p.docErr = fmt.Errorf("failed to parse HTML: %w", p.docErr)
		}
	}
	return p.doc, p.docErr
}

// Attempt records how one strategy did on a page.
type Attempt struct {
	Strategy string
	Kind     string
	Yield    int
	Err      error
}

// Result is the outcome of running a mall's strategies against a page.
type Result struct {
	Strategy   string
	Candidates []Candidate
	Attempts   []Attempt
}

// EmptyError means no strategy reached its minimum yield on a page.
type EmptyError struct {
	URL      string
	Attempts []Attempt
}

func (e *EmptyError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			parts = append(parts, fmt.Sprintf("%s=error(%v)", a.Strategy, a.Err))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", a.Strategy, a.Yield))
	}
	return fmt.Sprintf("no products extracted from %s (tried %s)", e.URL, strings.Join(parts, ", "))
}

// Extract runs the mall's strategies in order and returns the candidates of
// the first one whose yield reaches its minimum. Later strategies are not
// consulted once one succeeds, even if they would find more. When nothing
// qualifies an *EmptyError listing every attempt is returned.
func Extract(page *Page, d mall.Descriptor) (Result, error) {
	d = d.WithDefaults()
	result := Result{}

	for _, s := range d.Strategies {
		candidates, err := runStrategy(page, s)
		result.Attempts = append(result.Attempts, Attempt{
			Strategy: s.Name,
			Kind:     s.Kind,
			Yield:    len(candidates),
			Err:      err,
		})
		if err != nil || len(candidates) < s.MinProducts {
			continue
		}

		if d.MaxProducts > 0 && len(candidates) > d.MaxProducts {
			candidates = candidates[:d.MaxProducts]
		}
		result.Strategy = s.Name
		result.Candidates = candidates
		return result, nil
	}

	return result, &EmptyError{URL: page.URL, Attempts: result.Attempts}
}

func runStrategy(page *Page, s mall.Strategy) ([]Candidate, error) {
	switch s.Kind {
	case mall.KindJSON:
		return extractJSON(page, s)
	case mall.KindScript:
		return extractScript(page, s)
	case mall.KindFeed:
		return extractFeed(page, s)
	default:
		doc, err := page.Document()
		if err != nil {
			return nil, err
		}
		return extractHTML(doc, page.URL, s), nil
	}
}

// dedupe drops repeats of the same (link, name) pair, which happen when
// container selectors match nested elements.
func dedupe(in []Candidate) []Candidate {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, c := range in {
		key := c.LinkRef + "\x00" + c.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
