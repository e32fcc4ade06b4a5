// Package merge folds freshly normalized products into the catalog without
// duplicating or losing entries.
package merge

import (
	"slices"

	"github.com/pevans/mallfed/catalog"
)

// Merge modes.
const (
	ModeMerge   = "merge"
	ModeReplace = "replace"
)

// Error reasons recorded by the merge itself.
const (
	ReasonInvalid    = "invalid_record"
	ReasonIDConflict = "id_conflict"
)

// index maps dedup keys to positions in a product slice.
type index struct {
	byURL map[string]int
	byID  map[string]int
}

func newIndex(products []catalog.Product) *index {
	idx := &index{
		byURL: make(map[string]int, len(products)),
		byID:  make(map[string]int, len(products)),
	}
	for i, p := range products {
		idx.put(i, p)
	}
	return idx
}

// put registers p at position i. The first entry for a key wins so that a
// legacy catalog with duplicates still resolves deterministically.
func (x *index) put(i int, p catalog.Product) {
	if p.ProductURL != "" {
		if _, ok := x.byURL[p.ProductURL]; !ok {
			x.byURL[p.ProductURL] = i
		}
	}
	if p.ID != "" {
		if _, ok := x.byID[p.ID]; !ok {
			x.byID[p.ID] = i
		}
	}
}

func (x *index) drop(i int, p catalog.Product) {
	if j, ok := x.byURL[p.ProductURL]; ok && j == i {
		delete(x.byURL, p.ProductURL)
	}
	if j, ok := x.byID[p.ID]; ok && j == i {
		delete(x.byID, p.ID)
	}
}

// find looks p up by product URL, then by id. The id fallback catches
// entries whose URL changed shape but whose site-native id did not; byURL
// reports which key matched.
func (x *index) find(p catalog.Product) (i int, byURL, ok bool) {
	if i, ok := x.byURL[p.ProductURL]; ok && p.ProductURL != "" {
		return i, true, true
	}
	if i, ok := x.byID[p.ID]; ok {
		return i, false, true
	}
	return 0, false, false
}

type merger struct {
	out []catalog.Product
	idx *index
	s   *Summary
	// positions inserted or matched by this merge
	claimed map[int]bool
}

func newMerger(out []catalog.Product, mode string) *merger {
	return &merger{out: out, idx: newIndex(out), s: NewSummary(mode), claimed: make(map[int]bool)}
}

// Merge folds incoming into existing and returns the new catalog and a
// summary. For each incoming record:
//
//	no entry with its key       -> appended (new)
//	entry with different fields -> replaced in place, createdAt kept (updated)
//	entry with the same fields  -> lastVerified refreshed (duplicate)
//
// Entries are never removed. Invalid incoming records, records whose id
// already belongs to a different entry, and a second record in one batch
// reaching an entry by id under another URL are counted as errors and
// skipped.
// existing is not modified.
func Merge(existing, incoming []catalog.Product) ([]catalog.Product, *Summary) {
	out := slices.Clone(existing)
	if out == nil {
		out = []catalog.Product{}
	}
	m := newMerger(out, ModeMerge)

	for _, p := range incoming {
		m.add(p, nil)
	}

	m.s.TotalProducts = len(m.out)
	return m.out, m.s
}

// ReplaceMall swaps a mall's entries for incoming. Entries of other malls are
// untouched. Incoming records that match a previous entry of the mall count
// as updated or duplicate and keep its createdAt; previous entries with no
// incoming match count as removed. This is the only operation that deletes
// catalog entries.
func ReplaceMall(existing []catalog.Product, mallID string, incoming []catalog.Product) ([]catalog.Product, *Summary) {
	var kept, prior []catalog.Product
	for _, p := range existing {
		if p.MallID == mallID {
			prior = append(prior, p)
		} else {
			kept = append(kept, p)
		}
	}
	if kept == nil {
		kept = []catalog.Product{}
	}

	m := newMerger(kept, ModeReplace)
	priorIdx := newIndex(prior)
	matched := make([]bool, len(prior))

	for _, p := range incoming {
		if i, ok := m.add(p, &priorMatch{idx: priorIdx, products: prior}); ok {
			matched[i] = true
		}
	}

	for _, ok := range matched {
		if !ok {
			m.s.Removed++
		}
	}

	m.s.TotalProducts = len(m.out)
	return m.out, m.s
}

type priorMatch struct {
	idx      *index
	products []catalog.Product
}

// add merges one record. When prior is set and the record is new to the
// working catalog, it is compared against the prior entries instead; the
// returned index is the prior entry it matched.
func (m *merger) add(p catalog.Product, prior *priorMatch) (int, bool) {
	if !valid(p) {
		m.s.AddError(p.MallID, ReasonInvalid, p.Key())
		return 0, false
	}

	if i, byURL, ok := m.idx.find(p); ok {
		if j, taken := m.idx.byID[p.ID]; taken && j != i {
			m.s.AddError(p.MallID, ReasonIDConflict, p.ID)
			return 0, false
		}
		// Two listings with different URLs in one batch cannot both be the
		// entry's new shape.
		if !byURL && m.claimed[i] && p.ProductURL != "" && m.out[i].ProductURL != "" {
			m.s.AddError(p.MallID, ReasonIDConflict, p.ProductURL)
			return 0, false
		}
		m.claimed[i] = true
		m.s.observe(p)
		m.apply(i, p)
		return 0, false
	}

	m.s.observe(p)
	m.out = append(m.out, p)
	i := len(m.out) - 1
	m.idx.put(i, p)
	m.claimed[i] = true

	if prior != nil {
		if j, _, ok := prior.idx.find(p); ok {
			old := prior.products[j]
			m.out[i] = old
			m.apply(i, p)
			return j, true
		}
	}

	m.s.New++
	if len(m.s.Samples) < MaxSamples {
		m.s.Samples = append(m.s.Samples, p)
	}
	return 0, false
}

// apply folds p into the entry at position i as an update or duplicate.
func (m *merger) apply(i int, p catalog.Product) {
	old := m.out[i]
	if old.SameContent(p) {
		m.s.Duplicates++
		if p.LastVerified.After(old.LastVerified) {
			m.out[i].LastVerified = p.LastVerified
		}
		return
	}

	m.s.Updated++
	if !old.CreatedAt.IsZero() {
		p.CreatedAt = old.CreatedAt
	}
	if old.LastVerified.After(p.LastVerified) {
		p.LastVerified = old.LastVerified
	}
	m.idx.drop(i, old)
	m.out[i] = p
	m.idx.put(i, p)
}

func valid(p catalog.Product) bool {
	return len(catalog.Verify([]catalog.Product{p})) == 0
}
