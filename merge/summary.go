package merge

import (
	"slices"
	"time"

	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/normalize"
)

// MaxSamples is how many newly inserted products a summary keeps.
const MaxSamples = 5

// maxErrorDetails caps the per-record error list; Errors keeps counting.
const maxErrorDetails = 200

// Mall outcome statuses.
const (
	StatusOK              = "ok"
	StatusFetchError      = "fetch_error"
	StatusExtractionEmpty = "extraction_empty"
)

// Price range buckets, in KRW.
var priceBuckets = []struct {
	label string
	upTo  int64 // exclusive; 0 = unbounded
}{
	{"under_10000", 10000},
	{"10000_29999", 30000},
	{"30000_49999", 50000},
	{"50000_99999", 100000},
	{"100000_plus", 0},
}

// Summary describes one run: what was scraped, what the merge did with it
// and how each mall fared. Category and price breakdowns cover the
// products accepted in this run.
type Summary struct {
	RunID      string    `json:"runId,omitempty"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Scraped       int `json:"scraped"`
	Accepted      int `json:"accepted"`
	New           int `json:"new"`
	Updated       int `json:"updated"`
	Duplicates    int `json:"duplicates"`
	Removed       int `json:"removed"`
	Errors        int `json:"errors"`
	TotalProducts int `json:"totalProducts"`

	Categories  map[string]int `json:"categories"`
	PriceRanges map[string]int `json:"priceRanges"`
	PriceMin    int64          `json:"priceMin"`
	PriceMax    int64          `json:"priceMax"`

	Samples      []catalog.Product      `json:"samples"`
	Corrections  []normalize.Correction `json:"corrections,omitempty"`
	ErrorDetails []RecordError          `json:"errorDetails,omitempty"`
	Malls        []MallResult           `json:"malls,omitempty"`
	BackupFile   string                 `json:"backupFile,omitempty"`
	CatalogFile  string                 `json:"catalogFile,omitempty"`
	Committed    bool                   `json:"committed"`
}

// RecordError is one rejected record.
type RecordError struct {
	MallID string `json:"mallId"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// MallResult is the outcome for one mall in a run.
type MallResult struct {
	MallID     string        `json:"mallId"`
	MallName   string        `json:"mallName"`
	Region     string        `json:"region"`
	Status     string        `json:"status"`
	Strategy   string        `json:"strategy,omitempty"`
	Pages      int           `json:"pages"`
	Candidates int           `json:"candidates"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"durationNs"`
}

// NewSummary returns an empty summary with its maps ready.
func NewSummary(mode string) *Summary {
	return &Summary{
		Mode:        mode,
		Categories:  map[string]int{},
		PriceRanges: map[string]int{},
		Samples:     []catalog.Product{},
	}
}

// AddError counts a rejected record.
func (s *Summary) AddError(mallID, reason, detail string) {
	s.Errors++
	if len(s.ErrorDetails) < maxErrorDetails {
		s.ErrorDetails = append(s.ErrorDetails, RecordError{MallID: mallID, Reason: reason, Detail: detail})
	}
}

// Absorb adds another summary's counts into s. Used to fold per-mall
// merges into one run summary.
func (s *Summary) Absorb(o *Summary) {
	s.Scraped += o.Scraped
	s.Accepted += o.Accepted
	s.New += o.New
	s.Updated += o.Updated
	s.Duplicates += o.Duplicates
	s.Removed += o.Removed
	for k, v := range o.Categories {
		s.Categories[k] += v
	}
	for k, v := range o.PriceRanges {
		s.PriceRanges[k] += v
	}
	if o.PriceMin > 0 && (s.PriceMin == 0 || o.PriceMin < s.PriceMin) {
		s.PriceMin = o.PriceMin
	}
	s.PriceMax = max(s.PriceMax, o.PriceMax)
	for _, p := range o.Samples {
		if len(s.Samples) < MaxSamples {
			s.Samples = append(s.Samples, p)
		}
	}
	s.Corrections = append(s.Corrections, o.Corrections...)
	for _, e := range o.ErrorDetails {
		s.AddError(e.MallID, e.Reason, e.Detail)
	}
	s.Errors += o.Errors - len(o.ErrorDetails)
	s.Malls = append(s.Malls, o.Malls...)
	s.TotalProducts = o.TotalProducts
}

// observe records an accepted product in the breakdowns.
func (s *Summary) observe(p catalog.Product) {
	s.Accepted++
	s.Categories[p.Category]++
	for _, b := range priceBuckets {
		if b.upTo == 0 || p.Price < b.upTo {
			s.PriceRanges[b.label]++
			break
		}
	}
	if s.PriceMin == 0 || p.Price < s.PriceMin {
		s.PriceMin = p.Price
	}
	s.PriceMax = max(s.PriceMax, p.Price)
}

// MallIDs returns the ids of malls with the given status.
func (s *Summary) MallIDs(status string) []string {
	var ids []string
	for _, m := range s.Malls {
		if m.Status == status {
			ids = append(ids, m.MallID)
		}
	}
	slices.Sort(ids)
	return ids
}
