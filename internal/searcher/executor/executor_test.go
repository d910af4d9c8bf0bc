package executor

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/query"
)

func setup(t *testing.T, docs ...index.Document) (*index.InvertedIndex, *Executor) {
	t.Helper()
	ix := index.New()
	for _, doc := range docs {
		if _, err := ix.AddDocument(doc); err != nil {
			t.Fatalf("AddDocument(%v): %v", doc, err)
		}
	}
	return ix, New(ix)
}

func run(t *testing.T, e *Executor, q query.Query) *SearchResult {
	t.Helper()
	res, err := e.Execute(context.Background(), q, 10)
	if err != nil {
		t.Fatalf("Execute(%s): %v", q, err)
	}
	return res
}

func parse(t *testing.T, input string) query.Query {
	t.Helper()
	q, err := parser.New(nil).Parse("text", input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	return q
}

func ids(res *SearchResult) []index.DocID {
	out := make([]index.DocID, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.DocID
	}
	return out
}

func TestPhraseRequiresAdjacency(t *testing.T) {
	_, e := setup(t,
		index.Document{"title": "t1", "text": "the quick brown fox"},
		index.Document{"title": "t2", "text": "quick fox"},
	)
	res := run(t, e, query.Phrase{Field: "text", Terms: []string{"quick", "fox"}})
	if len(res.Hits) != 1 || res.Hits[0].Fields["title"] != "t2" {
		t.Fatalf("hits = %+v, want only t2", res.Hits)
	}
	if res.Hits[0].Score <= 0 {
		t.Errorf("phrase score = %f, want > 0", res.Hits[0].Score)
	}
}

func TestPhraseOrderMatters(t *testing.T) {
	_, e := setup(t, index.Document{"text": "fox quick"})
	res := run(t, e, query.Phrase{Field: "text", Terms: []string{"quick", "fox"}})
	if res.TotalHits != 0 {
		t.Errorf("TotalHits = %d, want 0", res.TotalHits)
	}
}

func TestBooleanExclusion(t *testing.T) {
	_, e := setup(t,
		index.Document{"text": "apple pie"},
		index.Document{"text": "apple tart"},
	)
	res := run(t, e, parse(t, "+apple -tart"))
	if got := ids(res); len(got) != 1 || got[0] != 0 {
		t.Fatalf("hits = %v, want [0]", got)
	}
}

func TestBooleanSemantics(t *testing.T) {
	_, e := setup(t,
		index.Document{"text": "apple pie"},
		index.Document{"text": "apple tart"},
		index.Document{"text": "cherry pie"},
	)
	tests := []struct {
		input string
		want  []index.DocID
	}{
		{"apple pie", []index.DocID{0, 1, 2}},
		{"+apple +pie", []index.DocID{0}},
		{"apple AND tart", []index.DocID{1}},
		{"+pie cherry", []index.DocID{2, 0}},
		{"-apple", nil},
		{"pie -cherry", []index.DocID{0}},
		{"+(apple cherry) -tart", []index.DocID{2, 0}},
	}
	for _, tt := range tests {
		res := run(t, e, parse(t, tt.input))
		got := ids(res)
		if len(got) != len(tt.want) {
			t.Errorf("%q: hits = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q: hits = %v, want %v", tt.input, got, tt.want)
				break
			}
		}
	}
}

func TestWildcardExpansionSumsTerms(t *testing.T) {
	_, e := setup(t, index.Document{"text": "testing tester tested"})
	res := run(t, e, parse(t, "test*"))
	if len(res.Hits) != 1 {
		t.Fatalf("hits = %+v, want one", res.Hits)
	}
	if math.Abs(res.Hits[0].Score-3) > 1e-9 {
		t.Errorf("score = %f, want 3 (three terms, tf=1, idf=1)", res.Hits[0].Score)
	}

	res = run(t, e, query.Wildcard{Field: "text", Pattern: "test?"})
	if res.TotalHits != 0 {
		t.Errorf("test? matched %d docs", res.TotalHits)
	}
	res = run(t, e, query.Wildcard{Field: "text", Pattern: "t*r"})
	if res.TotalHits != 1 {
		t.Errorf("t*r matched %d docs, want 1", res.TotalHits)
	}
}

func TestFuzzyTolerance(t *testing.T) {
	_, e := setup(t,
		index.Document{"text": "test"},
		index.Document{"text": "banana"},
	)
	res := run(t, e, parse(t, "tost~1"))
	if got := ids(res); len(got) != 1 || got[0] != 0 {
		t.Fatalf("hits = %v, want [0]", got)
	}
	exact := run(t, e, query.Fuzzy{Field: "text", Text: "test", MaxEdits: 1})
	if exact.Hits[0].Score <= res.Hits[0].Score {
		t.Errorf("exact match %f should outscore one edit %f", exact.Hits[0].Score, res.Hits[0].Score)
	}
}

func TestUnindexedTermIsEmpty(t *testing.T) {
	_, e := setup(t, index.Document{"text": "apple"})
	for _, q := range []query.Query{
		query.Term{Field: "text", Text: "zebra"},
		query.Term{Field: "missing", Text: "apple"},
		query.Boolean{},
	} {
		res := run(t, e, q)
		if res.TotalHits != 0 || len(res.Hits) != 0 || res.Hits == nil {
			t.Errorf("%s: result = %+v, want empty non-nil hits", q, res)
		}
	}
}

func TestRankingMonotonicInFrequency(t *testing.T) {
	_, e := setup(t,
		index.Document{"text": "fox"},
		index.Document{"text": "fox fox fox"},
		index.Document{"text": "cat"},
	)
	res := run(t, e, query.Term{Field: "text", Text: "fox"})
	if got := ids(res); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("hits = %v, want [1 0]", got)
	}
	if res.Hits[0].Score <= res.Hits[1].Score {
		t.Errorf("scores %f <= %f", res.Hits[0].Score, res.Hits[1].Score)
	}
}

func TestTermInEveryDocumentStillScores(t *testing.T) {
	_, e := setup(t, index.Document{"text": "fox"})
	res := run(t, e, query.Term{Field: "text", Text: "fox"})
	if len(res.Hits) != 1 || res.Hits[0].Score != 1 {
		t.Fatalf("single document hits = %+v, want score 1", res.Hits)
	}

	_, e = setup(t,
		index.Document{"text": "fox"},
		index.Document{"text": "fox fox"},
	)
	res = run(t, e, query.Term{Field: "text", Text: "fox"})
	if got := ids(res); len(got) != 2 || got[0] != 1 {
		t.Fatalf("hits = %v, want doc 1 first", got)
	}
	if res.Hits[1].Score <= 0 || res.Hits[0].Score <= res.Hits[1].Score {
		t.Errorf("scores = %f, %f", res.Hits[0].Score, res.Hits[1].Score)
	}
}

func TestDeletedDocumentsNeverReturned(t *testing.T) {
	ix, e := setup(t,
		index.Document{"text": "fox"},
		index.Document{"text": "fox"},
	)
	if err := ix.DeleteDocument(0); err != nil {
		t.Fatal(err)
	}
	for _, q := range []query.Query{
		query.Term{Field: "text", Text: "fox"},
		query.Prefix{Field: "text", Prefix: "fo"},
		query.Fuzzy{Field: "text", Text: "fix", MaxEdits: 1},
	} {
		res := run(t, e, q)
		if got := ids(res); len(got) != 1 || got[0] != 1 {
			t.Errorf("%s: hits = %v, want [1]", q, got)
		}
	}
	ix.Compact()
	if res := run(t, e, query.Term{Field: "text", Text: "fox"}); res.TotalHits != 1 {
		t.Errorf("after compaction TotalHits = %d, want 1", res.TotalHits)
	}
}

func TestTopKTruncatesAndTies(t *testing.T) {
	docs := make([]index.Document, 15)
	for i := range docs {
		docs[i] = index.Document{"text": "same words"}
	}
	_, e := setup(t, docs...)
	res, err := e.Execute(context.Background(), query.Term{Field: "text", Text: "same"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 15 || len(res.Hits) != 10 {
		t.Fatalf("TotalHits = %d, hits = %d; want 15, 10", res.TotalHits, len(res.Hits))
	}
	for i, h := range res.Hits {
		if h.DocID != index.DocID(i) {
			t.Errorf("hit %d = doc %d; equal scores must order by id", i, h.DocID)
		}
	}
}

func TestResultMetadata(t *testing.T) {
	ix, e := setup(t, index.Document{"text": "apple"})
	res := run(t, e, parse(t, "+apple -tart"))
	if res.Query != "+text:apple -text:tart" {
		t.Errorf("Query = %q", res.Query)
	}
	if res.Generation != ix.Generation() {
		t.Errorf("Generation = %d, want %d", res.Generation, ix.Generation())
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	_, e := setup(t, index.Document{"text": "apple"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Execute(ctx, query.Term{Field: "text", Text: "apple"}, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func BenchmarkExecuteBoolean(b *testing.B) {
	ix := index.New()
	words := []string{"apple", "banana", "cherry", "date", "elder", "fig", "grape"}
	for i := 0; i < 5000; i++ {
		ix.AddDocument(index.Document{"text": words[i%7] + " " + words[(i/7)%7] + " " + words[(i/49)%7]})
	}
	e := New(ix)
	q := query.Boolean{Clauses: []query.Clause{
		{Query: query.Term{Field: "text", Text: "apple"}, Occur: query.Must},
		{Query: query.Prefix{Field: "text", Prefix: "b"}},
		{Query: query.Term{Field: "text", Text: "fig"}, Occur: query.MustNot},
	}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Execute(context.Background(), q, 10)
	}
}
