package index

import (
	"sort"
	"strings"
)

// fieldIndex is the term dictionary of one field: hashed lookup for exact
// terms plus a sorted slice for range scans.
type fieldIndex struct {
	postings map[string]PostingList
	terms    []string
}

func newFieldIndex() *fieldIndex {
	return &fieldIndex{postings: make(map[string]PostingList)}
}

// append adds p to the end of term's posting list and reports whether the
// term is new to the field. Callers guarantee p.DocID is larger than any id
// already present.
func (f *fieldIndex) append(term string, p Posting) bool {
	pl, exists := f.postings[term]
	f.postings[term] = append(pl, p)
	return !exists
}

// mergeTerms folds newly created terms into the sorted slice in one pass.
func (f *fieldIndex) mergeTerms(added []string) {
	if len(added) == 0 {
		return
	}
	sort.Strings(added)
	merged := make([]string, 0, len(f.terms)+len(added))
	i, j := 0, 0
	for i < len(f.terms) && j < len(added) {
		if f.terms[i] < added[j] {
			merged = append(merged, f.terms[i])
			i++
		} else {
			merged = append(merged, added[j])
			j++
		}
	}
	merged = append(merged, f.terms[i:]...)
	merged = append(merged, added[j:]...)
	f.terms = merged
}

// prefixRange returns the sorted sub-slice of terms starting with prefix.
// The result aliases f.terms.
func (f *fieldIndex) prefixRange(prefix string) []string {
	lo := sort.SearchStrings(f.terms, prefix)
	hi := lo
	for hi < len(f.terms) && strings.HasPrefix(f.terms[hi], prefix) {
		hi++
	}
	return f.terms[lo:hi]
}

// rebuildTerms drops terms that no longer have postings.
func (f *fieldIndex) rebuildTerms() {
	kept := f.terms[:0]
	for _, term := range f.terms {
		if _, ok := f.postings[term]; ok {
			kept = append(kept, term)
		}
	}
	f.terms = kept
}
