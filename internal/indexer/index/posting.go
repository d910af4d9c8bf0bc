package index

import "sort"

// DocID is the internal identity assigned to a committed document. Ids are
// assigned in increasing order and never reused.
type DocID uint32

// Document maps field names to their raw text values.
type Document map[string]string

// Clone returns a copy that shares nothing with d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// FieldNames returns the document's field names in sorted order.
func (d Document) FieldNames() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Posting records one document's occurrences of a term. Positions are
// ascending and must not be modified by callers.
type Posting struct {
	DocID     DocID
	Frequency int
	Positions []int
}

// PostingList is ordered by increasing DocID.
type PostingList []Posting

// Find returns the posting for id using binary search.
func (pl PostingList) Find(id DocID) (Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= id })
	if i < len(pl) && pl[i].DocID == id {
		return pl[i], true
	}
	return Posting{}, false
}

// TermMatch is a dictionary term found by an edit-distance scan.
type TermMatch struct {
	Term     string
	Distance int
}

// Stats summarises the state of an index.
type Stats struct {
	LiveDocs     int    `json:"live_docs"`
	DeletedDocs  int    `json:"deleted_docs"`
	PendingPurge int    `json:"pending_purge"`
	Fields       int    `json:"fields"`
	Terms        int    `json:"terms"`
	Postings     int    `json:"postings"`
	Generation   uint64 `json:"generation"`
	NextDocID    uint64 `json:"next_doc_id"`
}
