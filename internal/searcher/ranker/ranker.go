// Package ranker holds the TF-IDF scoring functions and top-K selection
// used by the query executor.
package ranker

import (
	"container/heap"
	"math"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
)

// DefaultTopK is the result count used when callers ask for k <= 0.
const DefaultTopK = 10

type ScoredDoc struct {
	DocID index.DocID `json:"doc_id"`
	Score float64     `json:"score"`
}

// IDF returns 1 + ln(totalDocs/docFreq). Plain ln(N/df) is zero when a term
// is in every live document, which includes any match in a one-document
// session, and those hits would tie at score 0. The +1 keeps them ranked
// by TF.
func IDF(totalDocs, docFreq int) float64 {
	if totalDocs <= 0 || docFreq <= 0 {
		return 0
	}
	return 1 + math.Log(float64(totalDocs)/float64(docFreq))
}

// TF dampens a raw frequency as 1 + ln(freq); zero for freq <= 0.
func TF(freq int) float64 {
	if freq <= 0 {
		return 0
	}
	return 1 + math.Log(float64(freq))
}

func TermScore(freq, totalDocs, docFreq int) float64 {
	return TF(freq) * IDF(totalDocs, docFreq)
}

// FuzzyWeight scales the contribution of a term matched at the given edit
// distance.
func FuzzyWeight(distance int) float64 {
	return 1 / (1 + float64(distance))
}

// TopK returns the k best scores ordered by score descending, DocID
// ascending. k <= 0 means DefaultTopK.
func TopK(scores map[index.DocID]float64, k int) []ScoredDoc {
	if k <= 0 {
		k = DefaultTopK
	}
	h := &scoredDocHeap{}
	for id, score := range scores {
		heap.Push(h, ScoredDoc{DocID: id, Score: score})
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	result := make([]ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap on (score, -DocID) so the weakest hit is
// evicted first.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
