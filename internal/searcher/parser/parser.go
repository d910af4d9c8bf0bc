// Package parser turns free-text query strings and typed (kind, text) pairs
// into query.Query values. Terms are run through the same analyzer that
// indexed the documents so query and index terms line up.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
)

// SyntaxError describes a malformed query. Offset is the byte offset into
// Input where the problem was detected.
type SyntaxError struct {
	Input   string
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Offset, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return apperrors.ErrQuerySyntax
}

type Parser struct {
	analyzer *analyzer.Analyzer
}

func New(a *analyzer.Analyzer) *Parser {
	if a == nil {
		a = analyzer.New()
	}
	return &Parser{analyzer: a}
}

// Parse parses input against defaultField. Bare clauses are optional,
// '+' marks a clause required and '-' prohibited; AND, OR and NOT are
// accepted as keywords. A query whose every clause analyzes to nothing
// yields an empty Boolean, which matches no documents.
func (p *Parser) Parse(defaultField, input string) (query.Query, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SyntaxError{Input: input, Offset: 0, Message: "empty query"}
	}
	s := &scanner{parser: p, input: input}
	q, err := s.parseClauses(defaultField, -1)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Build constructs a query of the given kind. TERM, PREFIX, WILDCARD and
// FUZZY take text as a single normalized term; PHRASE analyzes text; BOOLEAN
// and OTHER go through Parse. Typed kinds other than BOOLEAN and OTHER
// reject blank text, and PREFIX rejects a bare "*".
func (p *Parser) Build(kind query.Kind, field, text string) (query.Query, error) {
	if kind != query.KindBoolean && kind != query.KindOther && strings.TrimSpace(text) == "" {
		return nil, apperrors.Invalid("%s query needs non-blank text", kind)
	}
	switch kind {
	case query.KindTerm:
		return query.Term{Field: field, Text: p.analyzer.NormalizeTerm(text)}, nil
	case query.KindPrefix:
		prefix := strings.TrimSuffix(p.analyzer.Normalize(text), "*")
		if prefix == "" {
			return nil, apperrors.Invalid("prefix query needs at least one character before *")
		}
		return query.Prefix{Field: field, Prefix: prefix}, nil
	case query.KindWildcard:
		return query.Wildcard{Field: field, Pattern: p.analyzer.Normalize(text)}, nil
	case query.KindFuzzy:
		return query.Fuzzy{Field: field, Text: p.analyzer.NormalizeTerm(text), MaxEdits: index.DefaultMaxEdits}, nil
	case query.KindPhrase:
		if q := p.phrase(field, text); q != nil {
			return q, nil
		}
		return query.Boolean{}, nil
	default:
		return p.Parse(field, text)
	}
}

// phrase analyzes text into a Phrase, a Term for a single token, or nil when
// nothing survives analysis.
func (p *Parser) phrase(field, text string) query.Query {
	terms := p.analyzer.Terms(text)
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return query.Term{Field: field, Text: terms[0]}
	default:
		return query.Phrase{Field: field, Terms: terms}
	}
}

// words turns analyzed word text into a Term or a Boolean of optional Terms.
func (p *Parser) words(field, text string) query.Query {
	terms := p.analyzer.Terms(text)
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return query.Term{Field: field, Text: terms[0]}
	}
	b := query.Boolean{Clauses: make([]query.Clause, len(terms))}
	for i, t := range terms {
		b.Clauses[i] = query.Clause{Query: query.Term{Field: field, Text: t}, Occur: query.Should}
	}
	return b
}

type scanner struct {
	parser *Parser
	input  string
	pos    int
}

// pending is a clause as written; q is nil when the clause analyzed to
// nothing but still counts for operator placement.
type pending struct {
	q        query.Query
	occur    query.Occur
	explicit bool
}

func (s *scanner) errorf(offset int, format string, args ...any) error {
	return &SyntaxError{Input: s.input, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func (s *scanner) peek() (rune, int) {
	if s.pos >= len(s.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(s.input[s.pos:])
}

func (s *scanner) skipSpace() {
	for {
		r, size := s.peek()
		if size == 0 || !unicode.IsSpace(r) {
			return
		}
		s.pos += size
	}
}

// parseClauses reads clauses until end of input, or until the ')' closing
// the group opened at groupStart when groupStart >= 0.
func (s *scanner) parseClauses(field string, groupStart int) (query.Query, error) {
	var (
		clauses     []pending
		requireNext bool
		negateNext  bool
		opOffset    = -1
		opName      string
	)
	for {
		s.skipSpace()
		r, size := s.peek()
		if size == 0 {
			if groupStart >= 0 {
				return nil, s.errorf(groupStart, "unbalanced parentheses: missing ')'")
			}
			break
		}
		if r == ')' {
			if groupStart < 0 {
				return nil, s.errorf(s.pos, "unbalanced parentheses: unexpected ')'")
			}
			if len(clauses) == 0 && opOffset < 0 {
				return nil, s.errorf(groupStart, "empty group")
			}
			break
		}

		if kw := s.keyword(); kw != "" {
			start := s.pos
			if opOffset >= 0 && (kw != "NOT" || opName == "NOT") {
				return nil, s.errorf(start, "operator %s follows %s", kw, opName)
			}
			switch kw {
			case "AND":
				if len(clauses) == 0 {
					return nil, s.errorf(start, "operator AND is missing its left clause")
				}
				if last := &clauses[len(clauses)-1]; !last.explicit {
					last.occur = query.Must
				}
				requireNext = true
			case "OR":
				if len(clauses) == 0 {
					return nil, s.errorf(start, "operator OR is missing its left clause")
				}
			case "NOT":
				negateNext = true
			}
			opOffset, opName = start, kw
			s.pos += len(kw)
			continue
		}

		clauseStart := s.pos
		c, err := s.parseClause(field)
		if err != nil {
			return nil, err
		}
		if negateNext {
			if c.explicit {
				return nil, s.errorf(clauseStart, "NOT cannot be combined with '+' or '-'")
			}
			c.occur, c.explicit = query.MustNot, true
		} else if requireNext && !c.explicit {
			c.occur = query.Must
		}
		requireNext, negateNext = false, false
		opOffset, opName = -1, ""
		clauses = append(clauses, c)
	}
	if opOffset >= 0 {
		return nil, s.errorf(opOffset, "operator %s is missing its right clause", opName)
	}
	return assemble(clauses), nil
}

// keyword reports an AND, OR or NOT operator at the current position. It
// must be delimited like a word and not used as a field name.
func (s *scanner) keyword() string {
	for _, kw := range []string{"AND", "OR", "NOT"} {
		if !strings.HasPrefix(s.input[s.pos:], kw) {
			continue
		}
		rest := s.input[s.pos+len(kw):]
		if rest == "" {
			return kw
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
			return kw
		}
	}
	return ""
}

func (s *scanner) parseClause(field string) (pending, error) {
	c := pending{occur: query.Should}
	r, size := s.peek()
	if r == '+' || r == '-' {
		start := s.pos
		s.pos += size
		next, nsize := s.peek()
		if nsize == 0 || unicode.IsSpace(next) || next == ')' || next == '+' || next == '-' {
			return c, s.errorf(start, "dangling '%c'", r)
		}
		c.explicit = true
		if r == '+' {
			c.occur = query.Must
		} else {
			c.occur = query.MustNot
		}
	}
	q, err := s.parseAtom(field, true)
	if err != nil {
		return c, err
	}
	c.q = q
	return c, nil
}

// parseAtom reads a group, a quoted phrase or a word. allowField permits a
// leading "field:" prefix.
func (s *scanner) parseAtom(field string, allowField bool) (query.Query, error) {
	start := s.pos
	r, _ := s.peek()
	switch r {
	case '(':
		s.pos++
		q, err := s.parseClauses(field, start)
		if err != nil {
			return nil, err
		}
		s.pos++
		return q, nil
	case '"':
		return s.parsePhrase(field)
	}

	w, err := s.readWord()
	if err != nil {
		return nil, err
	}
	if next, _ := s.peek(); next == ':' && allowField {
		if w.empty() || w.hasWildcard() {
			return nil, s.errorf(start, "invalid field name")
		}
		s.pos++
		s.skipSpace()
		if r, size := s.peek(); size == 0 || r == ')' {
			return nil, s.errorf(s.pos, "missing clause after field %q", w.literal())
		}
		return s.parseAtom(w.literal(), false)
	}
	if w.empty() {
		r, _ := s.peek()
		return nil, s.errorf(start, "unexpected %q", r)
	}
	if next, _ := s.peek(); next == '~' {
		return s.parseFuzzy(field, w, start)
	}
	return s.wordQuery(field, w), nil
}

func (s *scanner) parsePhrase(field string) (query.Query, error) {
	start := s.pos
	s.pos++
	var b strings.Builder
	for {
		r, size := s.peek()
		if size == 0 {
			return nil, s.errorf(start, "unterminated quote")
		}
		s.pos += size
		if r == '"' {
			break
		}
		if r == '\\' {
			esc, esize := s.peek()
			if esize == 0 {
				return nil, s.errorf(s.pos-size, "trailing escape character")
			}
			s.pos += esize
			r = esc
		}
		b.WriteRune(r)
	}
	if r, _ := s.peek(); r == '~' {
		return nil, s.errorf(s.pos, "proximity search is not supported")
	}
	return s.parser.phrase(field, b.String()), nil
}

func (s *scanner) parseFuzzy(field string, w word, start int) (query.Query, error) {
	if w.hasWildcard() {
		return nil, s.errorf(start, "fuzzy operator cannot follow a wildcard")
	}
	tilde := s.pos
	s.pos++
	digits := s.pos
	for {
		r, size := s.peek()
		if size == 0 || r < '0' || r > '9' {
			break
		}
		s.pos += size
	}
	edits := index.DefaultMaxEdits
	if s.pos > digits {
		n, err := strconv.Atoi(s.input[digits:s.pos])
		if err != nil || n > index.DefaultMaxEdits {
			return nil, s.errorf(digits, "invalid fuzzy distance %q: must be 0..%d", s.input[digits:s.pos], index.DefaultMaxEdits)
		}
		edits = n
	}
	if r, size := s.peek(); size > 0 && !unicode.IsSpace(r) && r != ')' {
		return nil, s.errorf(tilde, "invalid fuzzy distance")
	}
	text := s.parser.analyzer.NormalizeTerm(w.literal())
	if text == "" {
		return nil, nil
	}
	return query.Fuzzy{Field: field, Text: text, MaxEdits: edits}, nil
}

func (s *scanner) wordQuery(field string, w word) query.Query {
	if !w.hasWildcard() {
		return s.parser.words(field, w.literal())
	}
	// Term dictionaries have no escape syntax, so a pattern that needs a
	// literal '*' or '?' cannot match anything.
	if w.hasEscapedWildcard() {
		return query.Boolean{}
	}
	text := s.parser.analyzer.Normalize(w.literal())
	if stem, ok := strings.CutSuffix(text, "*"); ok && stem != "" && !strings.ContainsAny(stem, "*?") {
		return query.Prefix{Field: field, Prefix: stem}
	}
	return query.Wildcard{Field: field, Pattern: text}
}

type wordRune struct {
	r       rune
	escaped bool
}

type word []wordRune

func (w word) empty() bool { return len(w) == 0 }

func (w word) literal() string {
	var b strings.Builder
	for _, wr := range w {
		b.WriteRune(wr.r)
	}
	return b.String()
}

func (w word) hasWildcard() bool {
	for _, wr := range w {
		if !wr.escaped && (wr.r == '*' || wr.r == '?') {
			return true
		}
	}
	return false
}

func (w word) hasEscapedWildcard() bool {
	for _, wr := range w {
		if wr.escaped && (wr.r == '*' || wr.r == '?') {
			return true
		}
	}
	return false
}

// readWord consumes runes up to whitespace or an unescaped delimiter.
func (s *scanner) readWord() (word, error) {
	var w word
	for {
		r, size := s.peek()
		if size == 0 || unicode.IsSpace(r) {
			return w, nil
		}
		switch r {
		case '(', ')', '"', ':', '~':
			return w, nil
		case '\\':
			escAt := s.pos
			s.pos += size
			esc, esize := s.peek()
			if esize == 0 {
				return nil, s.errorf(escAt, "trailing escape character")
			}
			s.pos += esize
			w = append(w, wordRune{r: esc, escaped: true})
			continue
		}
		s.pos += size
		w = append(w, wordRune{r: r})
	}
}

// assemble drops clauses that analyzed to nothing and unwraps a lone
// non-prohibited clause.
func assemble(clauses []pending) query.Query {
	b := query.Boolean{}
	for _, c := range clauses {
		if c.q == nil {
			continue
		}
		b.Clauses = append(b.Clauses, query.Clause{Query: c.q, Occur: c.occur})
	}
	if len(b.Clauses) == 1 && b.Clauses[0].Occur != query.MustNot {
		return b.Clauses[0].Query
	}
	return b
}
