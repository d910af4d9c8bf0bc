// Package index implements the in-memory inverted index: per-field term
// dictionaries with positional posting lists, stored field values and
// tombstone bookkeeping for deleted documents.
package index

import (
	"fmt"
	"math"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/analyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

// DefaultMaxEdits is the fuzzy edit-distance bound used when callers pass a
// negative maximum.
const DefaultMaxEdits = 2

// CapacityError reports that a write was refused because the index is full.
// The index is left unchanged.
type CapacityError struct {
	Limit  uint64
	Reason string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("index capacity exceeded: %s (limit %d)", e.Reason, e.Limit)
}

func (e *CapacityError) Unwrap() error {
	return apperrors.ErrCapacityExceeded
}

type Option func(*InvertedIndex)

func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(ix *InvertedIndex) {
		if a != nil {
			ix.analyzer = a
		}
	}
}

// WithMaxDocuments caps the number of live documents. Zero means unlimited.
func WithMaxDocuments(n int) Option {
	return func(ix *InvertedIndex) {
		ix.maxDocs = n
	}
}

// InvertedIndex maps (field, term) to posting lists. A single RWMutex
// serialises writers; readers see either the state before a commit or after
// it, never a partially indexed document.
type InvertedIndex struct {
	mu         sync.RWMutex
	analyzer   *analyzer.Analyzer
	fields     map[string]*fieldIndex
	stored     map[DocID]Document
	deleted    *roaring.Bitmap
	nextID     uint64
	live       int
	postings   int
	unpurged   int
	generation uint64
	maxDocs    int
}

func New(opts ...Option) *InvertedIndex {
	ix := &InvertedIndex{
		analyzer: analyzer.New(),
		fields:   make(map[string]*fieldIndex),
		stored:   make(map[DocID]Document),
		deleted:  roaring.New(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *InvertedIndex) Analyzer() *analyzer.Analyzer {
	return ix.analyzer
}

// analyzedDoc is a document tokenised ahead of taking the write lock.
type analyzedDoc struct {
	doc    Document
	fields map[string]map[string]*Posting
}

func (ix *InvertedIndex) analyze(doc Document) (*analyzedDoc, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: document has no fields", apperrors.ErrInvalidInput)
	}
	ad := &analyzedDoc{
		doc:    doc.Clone(),
		fields: make(map[string]map[string]*Posting, len(doc)),
	}
	for name, text := range doc {
		if name == "" {
			return nil, fmt.Errorf("%w: empty field name", apperrors.ErrInvalidInput)
		}
		termData := make(map[string]*Posting)
		for _, token := range ix.analyzer.Analyze(text) {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{Positions: make([]int, 0, 2)}
				termData[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
		}
		ad.fields[name] = termData
	}
	return ad, nil
}

// commit must be called with the write lock held. It either applies the
// whole document or nothing.
func (ix *InvertedIndex) commit(ad *analyzedDoc) (DocID, error) {
	if ix.maxDocs > 0 && ix.live >= ix.maxDocs {
		return 0, &CapacityError{Limit: uint64(ix.maxDocs), Reason: "maximum live documents reached"}
	}
	if ix.nextID > math.MaxUint32 {
		return 0, &CapacityError{Limit: math.MaxUint32, Reason: "document id space exhausted"}
	}
	id := DocID(ix.nextID)
	ix.nextID++

	for name, termData := range ad.fields {
		fi, ok := ix.fields[name]
		if !ok {
			fi = newFieldIndex()
			ix.fields[name] = fi
		}
		var added []string
		for term, p := range termData {
			p.DocID = id
			if fi.append(term, *p) {
				added = append(added, term)
			}
			ix.postings++
		}
		fi.mergeTerms(added)
	}
	ix.stored[id] = ad.doc
	ix.live++
	ix.generation++
	return id, nil
}

// AddDocument analyzes and indexes every field of doc, then stores the raw
// values. The document becomes visible to readers all at once.
func (ix *InvertedIndex) AddDocument(doc Document) (DocID, error) {
	ad, err := ix.analyze(doc)
	if err != nil {
		return 0, err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.commit(ad)
}

// AddDocuments indexes docs in order under a single write lock. When a
// document is rejected the ids committed before it are returned together
// with the error; those documents stay indexed.
func (ix *InvertedIndex) AddDocuments(docs []Document) ([]DocID, error) {
	prepared := make([]*analyzedDoc, 0, len(docs))
	var prepErr error
	for i, doc := range docs {
		ad, err := ix.analyze(doc)
		if err != nil {
			prepErr = fmt.Errorf("document %d: %w", i, err)
			break
		}
		prepared = append(prepared, ad)
	}

	ids := make([]DocID, 0, len(prepared))
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, ad := range prepared {
		id, err := ix.commit(ad)
		if err != nil {
			return ids, fmt.Errorf("document %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, prepErr
}

// DeleteDocument tombstones id. Its stored fields are released at once and
// its postings are dropped by the next Compact.
func (ix *InvertedIndex) DeleteDocument(id DocID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if uint64(id) >= ix.nextID || ix.deleted.Contains(uint32(id)) {
		return fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, id)
	}
	ix.deleted.Add(uint32(id))
	delete(ix.stored, id)
	ix.live--
	ix.unpurged++
	ix.generation++
	return nil
}

// Compact physically removes postings that belong to deleted documents and
// returns how many were dropped.
func (ix *InvertedIndex) Compact() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.unpurged == 0 {
		return 0
	}
	removed := 0
	for name, fi := range ix.fields {
		pruned := false
		for term, pl := range fi.postings {
			kept := make(PostingList, 0, len(pl))
			for _, p := range pl {
				if ix.deleted.Contains(uint32(p.DocID)) {
					removed++
					continue
				}
				kept = append(kept, p)
			}
			if len(kept) == len(pl) {
				continue
			}
			if len(kept) == 0 {
				delete(fi.postings, term)
				pruned = true
				continue
			}
			fi.postings[term] = kept
		}
		if pruned {
			fi.rebuildTerms()
		}
		if len(fi.postings) == 0 {
			delete(ix.fields, name)
		}
	}
	ix.postings -= removed
	ix.unpurged = 0
	return removed
}

// View runs fn while holding the read lock, so every lookup made through v
// observes the same committed state. v must not be retained after fn
// returns, and fn must not call write methods on ix.
func (ix *InvertedIndex) View(fn func(v *View) error) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return fn(&View{ix: ix})
}

func (ix *InvertedIndex) StoredFields(id DocID) (Document, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return (&View{ix: ix}).StoredFields(id)
}

func (ix *InvertedIndex) TermPostings(field, term string) PostingList {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return (&View{ix: ix}).TermPostings(field, term)
}

func (ix *InvertedIndex) TermsWithPrefix(field, prefix string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return (&View{ix: ix}).TermsWithPrefix(field, prefix)
}

func (ix *InvertedIndex) TermsMatchingPattern(field, pattern string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return (&View{ix: ix}).TermsMatchingPattern(field, pattern)
}

// TermsWithinEditDistance returns the terms of field within maxDistance
// edits of term. A negative maxDistance selects DefaultMaxEdits.
func (ix *InvertedIndex) TermsWithinEditDistance(field, term string, maxDistance int) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	matches := (&View{ix: ix}).TermsWithinEditDistance(field, term, maxDistance)
	terms := make([]string, len(matches))
	for i, m := range matches {
		terms[i] = m.Term
	}
	return terms
}

func (ix *InvertedIndex) DocCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.live
}

// Generation increases with every committed add or delete.
func (ix *InvertedIndex) Generation() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generation
}

// PendingPurge is the number of deleted documents whose postings are still
// present.
func (ix *InvertedIndex) PendingPurge() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.unpurged
}

func (ix *InvertedIndex) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	terms := 0
	for _, fi := range ix.fields {
		terms += len(fi.terms)
	}
	return Stats{
		LiveDocs:     ix.live,
		DeletedDocs:  int(ix.deleted.GetCardinality()),
		PendingPurge: ix.unpurged,
		Fields:       len(ix.fields),
		Terms:        terms,
		Postings:     ix.postings,
		Generation:   ix.generation,
		NextDocID:    ix.nextID,
	}
}
