// Package engine owns a built index and evaluates queries against it. An
// Engine starts empty; Build publishes an immutable index that any number of
// concurrent Evaluate calls then read without locking.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
)

// Stats describes the live index.
type Stats struct {
	Ready      bool               `json:"ready"`
	Generation uint64             `json:"generation"`
	Documents  int                `json:"documents"`
	Terms      int                `json:"terms"`
	BuiltAt    time.Time          `json:"built_at,omitzero"`
	LastBuild  indexer.BuildStats `json:"last_build"`
}

// TermStat is one indexed term and the number of documents holding it.
type TermStat struct {
	Term    string `json:"term"`
	DocFreq int    `json:"doc_freq"`
}

// snapshot is what one successful Build publishes.
type snapshot struct {
	index      *index.Index
	stats      indexer.BuildStats
	generation uint64
	builtAt    time.Time
}

type Engine struct {
	cfg          config.SearchConfig
	analyzer     *tokenizer.Analyzer
	buildOptions []indexer.Option
	executor     *executor.Executor
	current      atomic.Pointer[snapshot]
	buildMu      sync.Mutex
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Engine)

// WithBuildOptions passes options through to every Build.
func WithBuildOptions(opts ...indexer.Option) Option {
	return func(e *Engine) {
		e.buildOptions = append(e.buildOptions, opts...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(cfg config.SearchConfig, analyzer *tokenizer.Analyzer, opts ...Option) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = config.DefaultMaxResults
	}
	if analyzer == nil {
		analyzer = tokenizer.Default()
	}
	e := &Engine{
		cfg:      cfg,
		analyzer: analyzer,
		executor: executor.New(analyzer, cfg.MaxConcurrentQueries),
		logger:   slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig wires an Engine from the application config: the analyzer
// from cfg.Analyzer, the task filter and strictness from cfg.Index.
func FromConfig(cfg *config.Config, opts ...Option) *Engine {
	buildOpts := []indexer.Option{indexer.WithStrict(cfg.Index.Strict)}
	if cfg.Index.TaskNumber != nil {
		buildOpts = append(buildOpts, indexer.WithFilter(document.TaskFilter(*cfg.Index.TaskNumber)))
	}
	opts = append([]Option{WithBuildOptions(buildOpts...)}, opts...)
	return New(cfg.Search, NewAnalyzer(cfg.Analyzer), opts...)
}

// NewAnalyzer builds the analyzer described by cfg. An empty stopword list
// keeps the built-in English list.
func NewAnalyzer(cfg config.AnalyzerConfig) *tokenizer.Analyzer {
	opts := []tokenizer.Option{
		tokenizer.WithStemming(cfg.Stemming),
		tokenizer.WithMinLength(cfg.MinTokenLength),
	}
	switch {
	case cfg.DisableStopwords:
		opts = append(opts, tokenizer.WithoutStopwords())
	case len(cfg.Stopwords) > 0:
		opts = append(opts, tokenizer.WithStopwords(cfg.Stopwords))
	}
	return tokenizer.New(opts...)
}

// Build indexes docs and publishes the result. Evaluations already running
// finish against the index they started with. A failed build leaves the
// previous index in place.
func (e *Engine) Build(ctx context.Context, docs []document.Document) (indexer.BuildStats, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	opts := append([]indexer.Option{indexer.WithLogger(e.logger)}, e.buildOptions...)
	if e.metrics != nil {
		opts = append(opts, indexer.WithMetrics(e.metrics))
	}
	ix, stats, err := indexer.NewBuilder(e.analyzer, opts...).Build(ctx, docs)
	if err != nil {
		return stats, fmt.Errorf("building index: %w", err)
	}

	var generation uint64 = 1
	if prev := e.current.Load(); prev != nil {
		generation = prev.generation + 1
	}
	e.current.Store(&snapshot{
		index:      ix,
		stats:      stats,
		generation: generation,
		builtAt:    time.Now(),
	})
	if e.metrics != nil {
		e.metrics.IndexDocuments.Set(float64(ix.DocCount()))
		e.metrics.IndexTerms.Set(float64(ix.TermCount()))
	}
	e.logger.Info("index published",
		"generation", generation,
		"documents", ix.DocCount(),
		"terms", ix.TermCount(),
	)
	return stats, nil
}

// Evaluate runs q against the live index, returning at most the configured
// maximum number of results.
func (e *Engine) Evaluate(ctx context.Context, q parser.Query) (*executor.SearchResult, error) {
	return e.EvaluateLimit(ctx, q, e.cfg.MaxResults)
}

// EvaluateLimit is Evaluate with a caller-chosen cap. Limits outside
// 1..MaxResults are clamped to MaxResults.
func (e *Engine) EvaluateLimit(ctx context.Context, q parser.Query, limit int) (*executor.SearchResult, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, &apperrors.IndexNotBuiltError{Operation: "evaluate"}
	}
	return e.executor.Execute(ctx, snap.index, q, e.clamp(limit))
}

// EvaluateAll runs queries concurrently against one index generation and
// returns their results in input order.
func (e *Engine) EvaluateAll(ctx context.Context, queries []parser.Query) ([]*executor.SearchResult, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, &apperrors.IndexNotBuiltError{Operation: "evaluate all"}
	}
	return e.executor.ExecuteBatch(ctx, snap.index, queries, e.cfg.MaxResults)
}

// TopTerms lists the terms of field held by the most documents, ties in
// term order. An empty field covers every field; limit <= 0 lists all.
func (e *Engine) TopTerms(field string, limit int) ([]TermStat, error) {
	if field != "" && !document.IsField(field) {
		return nil, apperrors.NewInvalidQueryError(field, "unsupported field")
	}
	snap := e.current.Load()
	if snap == nil {
		return nil, &apperrors.IndexNotBuiltError{Operation: "top terms"}
	}
	stats := make([]TermStat, 0)
	for _, entry := range snap.index.Snapshot() {
		if field != "" && entry.Term.Field != field {
			continue
		}
		stats = append(stats, TermStat{Term: entry.Term.String(), DocFreq: len(entry.Postings)})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].DocFreq > stats[j].DocFreq
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// Document returns the stored document with the given id in the live index.
func (e *Engine) Document(id uint32) (document.Document, error) {
	snap := e.current.Load()
	if snap == nil {
		return document.Document{}, &apperrors.IndexNotBuiltError{Operation: "document"}
	}
	doc, ok := snap.index.Document(id)
	if !ok {
		return document.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return doc, nil
}

// Ready reports whether an index has been published.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

// Generation is 0 before the first build and increases by one with every
// successful build.
func (e *Engine) Generation() uint64 {
	if snap := e.current.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// MaxResults is the configured result cap.
func (e *Engine) MaxResults() int {
	return e.cfg.MaxResults
}

func (e *Engine) Stats() Stats {
	snap := e.current.Load()
	if snap == nil {
		return Stats{}
	}
	return Stats{
		Ready:      true,
		Generation: snap.generation,
		Documents:  snap.index.DocCount(),
		Terms:      snap.index.TermCount(),
		BuiltAt:    snap.builtAt,
		LastBuild:  snap.stats,
	}
}

func (e *Engine) clamp(limit int) int {
	if limit <= 0 || limit > e.cfg.MaxResults {
		return e.cfg.MaxResults
	}
	return limit
}
