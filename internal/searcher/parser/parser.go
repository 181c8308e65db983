// Package parser defines the structured boolean query the engine evaluates
// and parses the compact query-string form accepted by the CLI and the HTTP
// API.
//
// Query-string syntax, whitespace separated:
//
//	field:term     required (MUST)
//	+field:term    required (MUST)
//	-field:term    excluded (MUST_NOT)
//	NOT field:term excluded (MUST_NOT)
//	term           required term in the abstract
//	AND            ignored; clauses are always conjunctive
package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
)

type Occur string

const (
	Must    Occur = "must"
	MustNot Occur = "must_not"
)

// Clause asks for Text to be present in (Must) or absent from (MustNot)
// Field. Text is raw; the executor normalises it with the index analyzer.
type Clause struct {
	Field string `json:"field"`
	Occur Occur  `json:"occur"`
	Text  string `json:"text"`
}

func (c Clause) String() string {
	prefix := "+"
	if c.Occur == MustNot {
		prefix = "-"
	}
	return prefix + c.Field + ":" + c.Text
}

type Query struct {
	Clauses  []Clause `json:"clauses"`
	RawQuery string   `json:"raw_query,omitempty"`
}

// fieldAliases lets the query string use the parameter names of the
// original command-line tool.
var fieldAliases = map[string]string{
	"relevant": document.FieldRelevance,
	"task":     document.FieldTaskNumber,
}

// FromLists builds a query in the shape of the original search call: terms
// required in or excluded from the title and the abstract, plus required
// relevance values. Nil and empty lists add nothing.
func FromLists(inTitle, notInTitle, inAbstract, notInAbstract, relevant []string) Query {
	var q Query
	q.add(document.FieldTitle, Must, inTitle)
	q.add(document.FieldTitle, MustNot, notInTitle)
	q.add(document.FieldAbstract, Must, inAbstract)
	q.add(document.FieldAbstract, MustNot, notInAbstract)
	q.add(document.FieldRelevance, Must, relevant)
	return q
}

func (q *Query) add(field string, occur Occur, texts []string) {
	for _, text := range texts {
		q.Clauses = append(q.Clauses, Clause{Field: field, Occur: occur, Text: text})
	}
}

// Must returns the required clauses in query order.
func (q Query) Must() []Clause {
	return q.filter(Must)
}

// MustNot returns the excluded clauses in query order.
func (q Query) MustNot() []Clause {
	return q.filter(MustNot)
}

func (q Query) filter(occur Occur) []Clause {
	out := make([]Clause, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		if c.Occur == occur {
			out = append(out, c)
		}
	}
	return out
}

// Values returns the texts of the clauses on field with the given occur.
func (q Query) Values(field string, occur Occur) []string {
	var out []string
	for _, c := range q.Clauses {
		if c.Field == field && c.Occur == occur {
			out = append(out, c.Text)
		}
	}
	return out
}

// IsEmpty reports whether the query has no clauses at all.
func (q Query) IsEmpty() bool {
	return len(q.Clauses) == 0
}

// Validate rejects clauses naming an unknown field or occur, and literal
// clauses whose value can never be indexed.
func (q Query) Validate() error {
	for _, c := range q.Clauses {
		if !document.IsField(c.Field) {
			return apperrors.NewInvalidQueryError(c.Field, "unsupported field")
		}
		if c.Occur != Must && c.Occur != MustNot {
			return apperrors.NewInvalidQueryError(c.Field, fmt.Sprintf("unsupported occur %q", c.Occur))
		}
		value := strings.TrimSpace(c.Text)
		switch c.Field {
		case document.FieldRelevance:
			if value != document.RelevantTerm && value != document.NotRelevantTerm {
				return apperrors.NewInvalidQueryError(c.Field, fmt.Sprintf("value %q must be 0 or 1", c.Text))
			}
		case document.FieldTaskNumber:
			if _, err := strconv.Atoi(value); err != nil {
				return apperrors.NewInvalidQueryError(c.Field, fmt.Sprintf("value %q is not an integer", c.Text))
			}
		}
	}
	return nil
}

// Canonical renders the query with clauses sorted, so that queries with the
// same clauses in a different order render identically.
func (q Query) Canonical() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = Clause{Field: c.Field, Occur: c.Occur, Text: strings.ToLower(strings.TrimSpace(c.Text))}.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func (q Query) String() string {
	if q.RawQuery != "" {
		return q.RawQuery
	}
	return q.Canonical()
}

// Parse reads the query-string form. The result is validated.
func Parse(raw string) (Query, error) {
	q := Query{RawQuery: raw}
	words := strings.Fields(raw)
	excludeNext := false
	for _, word := range words {
		switch strings.ToUpper(word) {
		case "AND":
			continue
		case "OR":
			return Query{}, apperrors.NewInvalidQueryError("", "OR is not supported; clauses are conjunctive")
		case "NOT":
			excludeNext = true
			continue
		}

		occur := Must
		switch {
		case strings.HasPrefix(word, "-"):
			occur = MustNot
			word = word[1:]
		case strings.HasPrefix(word, "+"):
			word = word[1:]
		}
		if excludeNext {
			occur = MustNot
			excludeNext = false
		}

		field := document.FieldAbstract
		if i := strings.IndexByte(word, ':'); i >= 0 {
			field = word[:i]
			word = word[i+1:]
			if alias, ok := fieldAliases[field]; ok {
				field = alias
			}
		}
		if word == "" {
			return Query{}, apperrors.NewInvalidQueryError(field, "empty term")
		}
		q.Clauses = append(q.Clauses, Clause{Field: field, Occur: occur, Text: word})
	}
	if excludeNext {
		return Query{}, apperrors.NewInvalidQueryError("", "NOT without a term")
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}
