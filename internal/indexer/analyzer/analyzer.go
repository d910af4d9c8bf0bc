// Package analyzer turns raw field text into normalized tokens. It folds the
// input to NFKC, splits on non-alphanumeric boundaries, lower-cases each
// piece, drops stop-words and assigns contiguous positions to the survivors.
// The same Analyzer is used when indexing and when building queries, so both
// sides agree on what a term is.
package analyzer

import (
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// EnglishStopWords is the default stop-word set.
var EnglishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "if", "in", "into", "is", "it", "no", "not", "of",
	"on", "or", "such", "that", "the", "their", "then", "there",
	"these", "they", "this", "to", "was", "will", "with",
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

type Option func(*Analyzer)

// WithStopWords replaces the default stop-word set. An empty slice disables
// stop-word removal.
func WithStopWords(words []string) Option {
	return func(a *Analyzer) {
		a.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			a.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithStemming enables Snowball English stemming of every surviving token.
func WithStemming(enabled bool) Option {
	return func(a *Analyzer) {
		a.stem = enabled
	}
}

// Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	stopWords map[string]struct{}
	stem      bool
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{}
	WithStopWords(EnglishStopWords)(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze breaks text into lowercased Tokens with stop-words removed.
// Positions are zero-based and contiguous.
func (a *Analyzer) Analyze(text string) []Token {
	words := strings.FieldsFunc(a.Normalize(text), isSeparator)
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if a.IsStopWord(word) {
			continue
		}
		if a.stem {
			word = snowballeng.Stem(word, false)
			if word == "" {
				continue
			}
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: len(tokens),
		})
	}
	return tokens
}

// Terms returns only the term strings of Analyze(text).
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Normalize folds s to NFKC, lower-cases and trims it without splitting.
// Prefix and wildcard patterns go through Normalize only.
func (a *Analyzer) Normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFKC.String(s)))
}

// NormalizeTerm is Normalize plus stemming when the analyzer stems, so a
// single query term lines up with indexed tokens.
func (a *Analyzer) NormalizeTerm(s string) string {
	term := a.Normalize(s)
	if a.stem && term != "" && strings.IndexFunc(term, isSeparator) < 0 {
		term = snowballeng.Stem(term, false)
	}
	return term
}

func (a *Analyzer) IsStopWord(word string) bool {
	_, ok := a.stopWords[word]
	return ok
}

func (a *Analyzer) Stemming() bool { return a.stem }

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
