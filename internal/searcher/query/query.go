// Package query defines the typed query model evaluated by the executor.
// A Query is one of Term, Prefix, Wildcard, Phrase, Fuzzy or Boolean; the
// set is closed, so consumers can switch over the concrete types.
package query

import (
	"strconv"
	"strings"
)

// Query is a tagged variant over the concrete query types of this package.
type Query interface {
	// String renders the query in canonical parser syntax with explicit
	// fields. Equal queries render identically.
	String() string
	isQuery()
}

// Term matches documents whose field contains Text exactly.
type Term struct {
	Field string
	Text  string
}

// Prefix matches every term of Field starting with Prefix.
type Prefix struct {
	Field  string
	Prefix string
}

// Wildcard matches terms against Pattern, where '*' is any run of
// characters and '?' exactly one.
type Wildcard struct {
	Field   string
	Pattern string
}

// Phrase matches documents where Terms occur at consecutive positions.
type Phrase struct {
	Field string
	Terms []string
}

// Fuzzy matches terms within MaxEdits Levenshtein edits of Text.
type Fuzzy struct {
	Field    string
	Text     string
	MaxEdits int
}

// Occur says how a clause takes part in a Boolean query.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

type Clause struct {
	Query Query
	Occur Occur
}

// Boolean combines clauses. A Boolean without clauses matches nothing.
type Boolean struct {
	Clauses []Clause
}

func (Term) isQuery()     {}
func (Prefix) isQuery()   {}
func (Wildcard) isQuery() {}
func (Phrase) isQuery()   {}
func (Fuzzy) isQuery()    {}
func (Boolean) isQuery()  {}

func (q Term) String() string {
	return q.Field + ":" + q.Text
}

func (q Prefix) String() string {
	return q.Field + ":" + q.Prefix + "*"
}

func (q Wildcard) String() string {
	return q.Field + ":" + q.Pattern
}

func (q Phrase) String() string {
	return q.Field + ":\"" + strings.Join(q.Terms, " ") + "\""
}

func (q Fuzzy) String() string {
	return q.Field + ":" + q.Text + "~" + strconv.Itoa(q.MaxEdits)
}

func (q Boolean) String() string {
	parts := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		s := c.Query.String()
		if _, nested := c.Query.(Boolean); nested {
			s = "(" + s + ")"
		}
		parts = append(parts, c.Occur.String()+s)
	}
	return strings.Join(parts, " ")
}

// Kind selects the query type for a typed search.
type Kind int

const (
	KindOther Kind = iota
	KindTerm
	KindPrefix
	KindWildcard
	KindPhrase
	KindFuzzy
	KindBoolean
)

var kindNames = map[Kind]string{
	KindOther:    "OTHER",
	KindTerm:     "TERM",
	KindPrefix:   "PREFIX",
	KindWildcard: "WILDCARD",
	KindPhrase:   "PHRASE",
	KindFuzzy:    "FUZZY",
	KindBoolean:  "BOOLEAN",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "OTHER"
}

// ParseKind maps a selector such as "term" or "WILDCARD" to its Kind. The
// boolean result is false for unrecognized selectors, which map to
// KindOther.
func ParseKind(s string) (Kind, bool) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for kind, name := range kindNames {
		if name == upper {
			return kind, true
		}
	}
	return KindOther, false
}

// KindOf reports the Kind of a built query, for metrics and analytics.
func KindOf(q Query) Kind {
	switch q.(type) {
	case Term:
		return KindTerm
	case Prefix:
		return KindPrefix
	case Wildcard:
		return KindWildcard
	case Phrase:
		return KindPhrase
	case Fuzzy:
		return KindFuzzy
	case Boolean:
		return KindBoolean
	default:
		return KindOther
	}
}

// Terms collects the literal terms and patterns a query refers to, in
// clause order. Prohibited clauses are skipped.
func Terms(q Query) []string {
	var out []string
	var walk func(Query)
	walk = func(q Query) {
		switch v := q.(type) {
		case Term:
			out = append(out, v.Text)
		case Prefix:
			out = append(out, v.Prefix+"*")
		case Wildcard:
			out = append(out, v.Pattern)
		case Phrase:
			out = append(out, v.Terms...)
		case Fuzzy:
			out = append(out, v.Text+"~")
		case Boolean:
			for _, c := range v.Clauses {
				if c.Occur != MustNot {
					walk(c.Query)
				}
			}
		}
	}
	walk(q)
	return out
}
