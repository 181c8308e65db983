package executor

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
)

// Plan is a query reduced to index terms. Required and Excluded hold no
// duplicates and keep first-seen order. Unsatisfiable is set when a
// required clause normalises to no term, since no indexed document can
// contain it.
type Plan struct {
	Required      []index.Term
	Excluded      []index.Term
	Unsatisfiable bool
}

// NewPlan validates q and normalises every clause with the analyzer the
// index was built with. Literal fields are trimmed instead of analysed.
// An excluded clause that normalises to no term (only stop-words, say)
// excludes nothing.
func NewPlan(q parser.Query, analyzer *tokenizer.Analyzer) (Plan, error) {
	if err := q.Validate(); err != nil {
		return Plan{}, err
	}
	var p Plan
	seenReq := make(map[index.Term]struct{})
	seenExc := make(map[index.Term]struct{})
	for _, c := range q.Clauses {
		terms := clauseTerms(c, analyzer)
		if len(terms) == 0 && c.Occur == parser.Must {
			p.Unsatisfiable = true
		}
		for _, term := range terms {
			if c.Occur == parser.MustNot {
				if _, ok := seenExc[term]; !ok {
					seenExc[term] = struct{}{}
					p.Excluded = append(p.Excluded, term)
				}
				continue
			}
			if _, ok := seenReq[term]; !ok {
				seenReq[term] = struct{}{}
				p.Required = append(p.Required, term)
			}
		}
	}
	return p, nil
}

func clauseTerms(c parser.Clause, analyzer *tokenizer.Analyzer) []index.Term {
	if document.IsLiteralField(c.Field) {
		value := strings.TrimSpace(c.Text)
		if value == "" {
			return nil
		}
		return []index.Term{{Field: c.Field, Text: value}}
	}
	tokens := analyzer.Tokenize(c.Text)
	terms := make([]index.Term, len(tokens))
	for i, tok := range tokens {
		terms[i] = index.Term{Field: c.Field, Text: tok.Term}
	}
	return terms
}
