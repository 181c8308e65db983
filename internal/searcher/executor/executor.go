// Package executor evaluates boolean term queries against an immutable
// index: required terms are intersected, excluded terms subtracted, and the
// survivors scored and ranked.
package executor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/ranker"
	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
)

// cancelCheckEvery is how many candidates are scored between context checks.
const cancelCheckEvery = 1024

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
}

// Executor holds no per-query state, so one Executor serves any number of
// concurrent Execute calls.
type Executor struct {
	analyzer    *tokenizer.Analyzer
	concurrency int
	logger      *slog.Logger
}

// New returns an Executor normalising queries with analyzer, which must be
// the analyzer the index was built with. concurrency bounds ExecuteBatch;
// values below 1 mean unbounded.
func New(analyzer *tokenizer.Analyzer, concurrency int) *Executor {
	if analyzer == nil {
		analyzer = tokenizer.Default()
	}
	return &Executor{
		analyzer:    analyzer,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates q against ix and returns at most limit results
// (limit <= 0 means no cap). A query without required terms matches every
// document that no excluded term removes.
func (e *Executor) Execute(ctx context.Context, ix *index.Index, q parser.Query, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan, err := NewPlan(q, e.analyzer)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Query:     q.String(),
		Results:   []ranker.ScoredDoc{},
		TermStats: make(map[string]int, len(plan.Required)),
	}
	for _, term := range plan.Required {
		result.TermStats[term.String()] = ix.DocFreq(term)
	}

	if plan.Unsatisfiable {
		e.logQuery(result, plan, 0)
		return result, nil
	}
	candidates := intersect(ix, plan.Required)
	if candidates.IsEmpty() {
		e.logQuery(result, plan, 0)
		return result, nil
	}
	for _, term := range plan.Excluded {
		if bm := ix.Bitmap(term); bm != nil {
			candidates.AndNot(bm)
		}
	}
	result.TotalHits = int(candidates.GetCardinality())

	scored := make([]ranker.ScoredDoc, 0, result.TotalHits)
	freqs := make([]int, len(plan.Required))
	postings := make([]index.PostingList, len(plan.Required))
	for i, term := range plan.Required {
		postings[i] = ix.Postings(term)
	}
	it := candidates.Iterator()
	for n := 0; it.HasNext(); n++ {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		id := it.Next()
		for i, pl := range postings {
			freqs[i] = pl.Frequency(id)
		}
		scored = append(scored, ranker.ScoredDoc{DocID: id, Score: ranker.Score(freqs)})
	}

	ranked := ranker.Rank(scored, limit)
	for i := range ranked {
		doc, _ := ix.Document(ranked[i].DocID)
		ranked[i].Document = doc
	}
	result.Results = ranked
	e.logQuery(result, plan, len(scored))
	return result, nil
}

// ExecuteBatch evaluates queries concurrently against the same index and
// returns their results in input order. The first error cancels the rest.
func (e *Executor) ExecuteBatch(ctx context.Context, ix *index.Index, queries []parser.Query, limit int) ([]*SearchResult, error) {
	results := make([]*SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, q := range queries {
		g.Go(func() error {
			res, err := e.Execute(gctx, ix, q, limit)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// intersect returns a new bitmap of the documents holding every required
// term, or every document when there are none. It never aliases a bitmap
// owned by the index.
func intersect(ix *index.Index, required []index.Term) *roaring.Bitmap {
	if len(required) == 0 {
		return ix.AllDocs()
	}
	bitmaps := make([]*roaring.Bitmap, 0, len(required))
	for _, term := range required {
		bm := ix.Bitmap(term)
		if bm == nil {
			return roaring.New()
		}
		bitmaps = append(bitmaps, bm)
	}
	sort.Slice(bitmaps, func(i, j int) bool {
		return bitmaps[i].GetCardinality() < bitmaps[j].GetCardinality()
	})
	candidates := bitmaps[0].Clone()
	for _, bm := range bitmaps[1:] {
		candidates.And(bm)
		if candidates.IsEmpty() {
			break
		}
	}
	return candidates
}

func (e *Executor) logQuery(result *SearchResult, plan Plan, candidates int) {
	e.logger.Debug("query executed",
		"query", result.Query,
		"required", len(plan.Required),
		"excluded", len(plan.Excluded),
		"candidates", candidates,
		"total_hits", result.TotalHits,
		"results", len(result.Results),
	)
}
