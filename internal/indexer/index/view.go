package index

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
)

// View is a read-only window onto an InvertedIndex, valid only inside the
// callback passed to InvertedIndex.View. Terms passed to its lookups are
// expected to be normalized already.
type View struct {
	ix *InvertedIndex
}

// DocCount returns the number of live documents.
func (v *View) DocCount() int {
	return v.ix.live
}

func (v *View) Generation() uint64 {
	return v.ix.generation
}

func (v *View) IsDeleted(id DocID) bool {
	return v.ix.deleted.Contains(uint32(id))
}

func (v *View) StoredFields(id DocID) (Document, error) {
	doc, ok := v.ix.stored[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, id)
	}
	return doc.Clone(), nil
}

// TermPostings returns the live postings of term in field, ordered by
// DocID. The slice is a copy; Positions are shared and read-only.
func (v *View) TermPostings(field, term string) PostingList {
	pl := v.postings(field, term)
	if len(pl) == 0 {
		return nil
	}
	out := make(PostingList, 0, len(pl))
	for _, p := range pl {
		if v.ix.unpurged > 0 && v.IsDeleted(p.DocID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// DocFreq returns how many live documents contain term in field.
func (v *View) DocFreq(field, term string) int {
	pl := v.postings(field, term)
	if v.ix.unpurged == 0 {
		return len(pl)
	}
	n := 0
	for _, p := range pl {
		if !v.IsDeleted(p.DocID) {
			n++
		}
	}
	return n
}

func (v *View) TermsWithPrefix(field, prefix string) []string {
	fi, ok := v.ix.fields[field]
	if !ok {
		return nil
	}
	return v.liveTerms(fi, fi.prefixRange(prefix), nil)
}

// TermsMatchingPattern expands a wildcard pattern against field's terms.
// Only terms sharing the pattern's literal prefix are examined.
func (v *View) TermsMatchingPattern(field, pattern string) []string {
	fi, ok := v.ix.fields[field]
	if !ok {
		return nil
	}
	pattern = strings.ToLower(pattern)
	if !strings.ContainsAny(pattern, wildcardChars) {
		if _, exists := fi.postings[pattern]; exists {
			return v.liveTerms(fi, []string{pattern}, nil)
		}
		return nil
	}
	return v.liveTerms(fi, fi.prefixRange(literalPrefix(pattern)), func(term string) bool {
		return matchWildcard(pattern, term)
	})
}

// TermsWithinEditDistance scans field's terms for those within maxDistance
// Levenshtein edits of term. A negative maxDistance selects DefaultMaxEdits.
func (v *View) TermsWithinEditDistance(field, term string, maxDistance int) []TermMatch {
	fi, ok := v.ix.fields[field]
	if !ok {
		return nil
	}
	if maxDistance < 0 {
		maxDistance = DefaultMaxEdits
	}
	target := []rune(term)
	var matches []TermMatch
	for _, candidate := range fi.terms {
		d, ok := editDistance(target, []rune(candidate), maxDistance)
		if !ok || !v.hasLive(fi.postings[candidate]) {
			continue
		}
		matches = append(matches, TermMatch{Term: candidate, Distance: d})
	}
	return matches
}

// Fields lists the field names that have at least one indexed term.
func (v *View) Fields() []string {
	names := make([]string, 0, len(v.ix.fields))
	for name := range v.ix.fields {
		names = append(names, name)
	}
	return names
}

func (v *View) postings(field, term string) PostingList {
	fi, ok := v.ix.fields[field]
	if !ok {
		return nil
	}
	return fi.postings[term]
}

func (v *View) hasLive(pl PostingList) bool {
	if v.ix.unpurged == 0 {
		return len(pl) > 0
	}
	for _, p := range pl {
		if !v.IsDeleted(p.DocID) {
			return true
		}
	}
	return false
}

// liveTerms copies the candidates that pass keep and still have at least
// one live posting.
func (v *View) liveTerms(fi *fieldIndex, candidates []string, keep func(string) bool) []string {
	var out []string
	for _, term := range candidates {
		if keep != nil && !keep(term) {
			continue
		}
		if !v.hasLive(fi.postings[term]) {
			continue
		}
		out = append(out, term)
	}
	return out
}
