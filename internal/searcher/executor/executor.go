// Package executor evaluates query.Query values against an inverted index
// and ranks the matching documents with TF-IDF.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/ranker"
)

type Hit struct {
	DocID  index.DocID    `json:"id" msgpack:"id"`
	Score  float64        `json:"score" msgpack:"score"`
	Fields index.Document `json:"fields" msgpack:"fields"`
}

// SearchResult is the ranked outcome of one query. TotalHits counts every
// match before truncation to the requested size.
type SearchResult struct {
	Query      string `json:"query" msgpack:"query"`
	TotalHits  int    `json:"total_hits" msgpack:"total_hits"`
	Generation uint64 `json:"generation" msgpack:"generation"`
	Hits       []Hit  `json:"hits" msgpack:"hits"`
}

type Executor struct {
	index  *index.InvertedIndex
	logger *slog.Logger
}

func New(ix *index.InvertedIndex) *Executor {
	return &Executor{
		index:  ix,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates q and returns at most topK hits (topK <= 0 means
// ranker.DefaultTopK). All lookups, including stored fields, run inside a
// single index view.
func (e *Executor) Execute(ctx context.Context, q query.Query, topK int) (*SearchResult, error) {
	if q == nil {
		return nil, fmt.Errorf("executing query: nil query")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	result := &SearchResult{Query: q.String(), Hits: []Hit{}}
	err := e.index.View(func(v *index.View) error {
		result.Generation = v.Generation()
		scores := evaluate(v, q)
		result.TotalHits = len(scores)
		for _, sd := range ranker.TopK(scores, topK) {
			fields, err := v.StoredFields(sd.DocID)
			if err != nil {
				return fmt.Errorf("loading hit %d: %w", sd.DocID, err)
			}
			result.Hits = append(result.Hits, Hit{DocID: sd.DocID, Score: sd.Score, Fields: fields})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query executed",
		"query", result.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
	)
	return result, nil
}

type scores map[index.DocID]float64

func evaluate(v *index.View, q query.Query) scores {
	switch q := q.(type) {
	case query.Term:
		return termScores(v, q.Field, q.Text, 1, nil)
	case query.Prefix:
		out := scores{}
		for _, term := range v.TermsWithPrefix(q.Field, q.Prefix) {
			termScores(v, q.Field, term, 1, out)
		}
		return out
	case query.Wildcard:
		out := scores{}
		for _, term := range v.TermsMatchingPattern(q.Field, q.Pattern) {
			termScores(v, q.Field, term, 1, out)
		}
		return out
	case query.Fuzzy:
		out := scores{}
		for _, m := range v.TermsWithinEditDistance(q.Field, q.Text, q.MaxEdits) {
			termScores(v, q.Field, m.Term, ranker.FuzzyWeight(m.Distance), out)
		}
		return out
	case query.Phrase:
		return phraseScores(v, q)
	case query.Boolean:
		return booleanScores(v, q)
	default:
		return scores{}
	}
}

// termScores adds weight * TF-IDF of term to out for every live posting,
// allocating out when nil.
func termScores(v *index.View, field, term string, weight float64, out scores) scores {
	if out == nil {
		out = scores{}
	}
	postings := v.TermPostings(field, term)
	n, df := v.DocCount(), len(postings)
	// df == n still scores above zero; see ranker.IDF.
	for _, p := range postings {
		out[p.DocID] += weight * ranker.TermScore(p.Frequency, n, df)
	}
	return out
}

func phraseScores(v *index.View, q query.Phrase) scores {
	out := scores{}
	if len(q.Terms) == 0 {
		return out
	}
	lists := make([]index.PostingList, len(q.Terms))
	rarest := -1
	for i, term := range q.Terms {
		lists[i] = v.TermPostings(q.Field, term)
		if len(lists[i]) == 0 {
			return out
		}
		if rarest < 0 || len(lists[i]) < rarest {
			rarest = len(lists[i])
		}
	}
	idf := ranker.IDF(v.DocCount(), rarest)
	for _, first := range lists[0] {
		positions := make([][]int, len(lists))
		positions[0] = first.Positions
		found := true
		for i := 1; i < len(lists); i++ {
			p, ok := lists[i].Find(first.DocID)
			if !ok {
				found = false
				break
			}
			positions[i] = p.Positions
		}
		if !found {
			continue
		}
		if freq := phraseFrequency(positions); freq > 0 {
			out[first.DocID] = ranker.TF(freq) * idf
		}
	}
	return out
}

// phraseFrequency counts start positions s with s+i in positions[i] for
// every i.
func phraseFrequency(positions [][]int) int {
	freq := 0
	for _, start := range positions[0] {
		match := true
		for i := 1; i < len(positions); i++ {
			want := start + i
			j := sort.SearchInts(positions[i], want)
			if j == len(positions[i]) || positions[i][j] != want {
				match = false
				break
			}
		}
		if match {
			freq++
		}
	}
	return freq
}

// booleanScores matches documents satisfying every Must clause and no
// MustNot clause. Without Must clauses at least one Should clause has to
// match. Prohibited clauses never contribute to the score.
func booleanScores(v *index.View, q query.Boolean) scores {
	var (
		required   scores
		hasMust    bool
		optional   []scores
		prohibited []scores
	)
	for _, c := range q.Clauses {
		s := evaluate(v, c.Query)
		switch c.Occur {
		case query.Must:
			if !hasMust {
				required, hasMust = s, true
				continue
			}
			for id, score := range required {
				if extra, ok := s[id]; ok {
					required[id] = score + extra
				} else {
					delete(required, id)
				}
			}
		case query.MustNot:
			prohibited = append(prohibited, s)
		default:
			optional = append(optional, s)
		}
	}

	out := scores{}
	if hasMust {
		out = required
		for _, s := range optional {
			for id, score := range s {
				if _, ok := out[id]; ok {
					out[id] += score
				}
			}
		}
	} else {
		for _, s := range optional {
			for id, score := range s {
				out[id] += score
			}
		}
	}
	for _, s := range prohibited {
		for id := range s {
			delete(out, id)
		}
	}
	return out
}
