// Package indexer turns a collection of documents into an immutable
// inverted index. Text fields go through the analyzer; the task number and
// the relevance flag are stored as single literal terms.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
)

// checkEvery is how many documents are processed between context checks.
const checkEvery = 256

// BuildStats summarises one Build call.
type BuildStats struct {
	Accepted int           `json:"accepted"`
	Filtered int           `json:"filtered"`
	Skipped  int           `json:"skipped"`
	Terms    int           `json:"terms"`
	Duration time.Duration `json:"duration"`
}

// Builder is stateless between builds; one Builder may run any number of
// Build calls, concurrently or not.
type Builder struct {
	analyzer *tokenizer.Analyzer
	filter   document.Filter
	strict   bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Builder)

// WithFilter admits only documents for which f returns true. Documents it
// rejects are counted as filtered, never as errors.
func WithFilter(f document.Filter) Option {
	return func(b *Builder) {
		b.filter = f
	}
}

// WithStrict makes a malformed document fail the whole batch instead of
// being skipped.
func WithStrict(strict bool) Option {
	return func(b *Builder) {
		b.strict = strict
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

func NewBuilder(analyzer *tokenizer.Analyzer, opts ...Option) *Builder {
	if analyzer == nil {
		analyzer = tokenizer.Default()
	}
	b := &Builder{
		analyzer: analyzer,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Analyzer returns the analyzer text fields are indexed with. Queries must
// be normalised with the same analyzer.
func (b *Builder) Analyzer() *tokenizer.Analyzer {
	return b.analyzer
}

// Build indexes docs in input order, assigning ids from 0 to the accepted
// documents. An empty input yields a valid empty index.
//
// A malformed document is skipped and logged unless the builder is strict,
// in which case Build returns a *errors.MalformedDocumentError and no index.
func (b *Builder) Build(ctx context.Context, docs []document.Document) (*index.Index, BuildStats, error) {
	start := time.Now()
	w := index.NewWriter()
	var stats BuildStats

	for i, doc := range docs {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				b.observeBuild("cancelled", stats, start)
				return nil, stats, err
			}
		}
		if b.filter != nil && !b.filter(doc) {
			stats.Filtered++
			continue
		}
		if err := doc.Validate(i); err != nil {
			if b.strict {
				b.observeBuild("rejected", stats, start)
				return nil, stats, err
			}
			stats.Skipped++
			var malformed *apperrors.MalformedDocumentError
			field := ""
			if errors.As(err, &malformed) {
				field = malformed.Field
			}
			b.logger.Warn("skipping malformed document",
				"position", i,
				"field", field,
				"error", err,
			)
			continue
		}
		termFreqs := b.analyze(doc)
		id := w.Add(doc, termFreqs)
		stats.Accepted++
		b.logger.Debug("document indexed",
			"doc_id", id,
			"position", i,
			"terms", len(termFreqs),
		)
	}

	ix := w.Freeze()
	stats.Terms = ix.TermCount()
	stats.Duration = time.Since(start)
	b.observeBuild("ok", stats, start)
	b.logger.Info("index built",
		"accepted", stats.Accepted,
		"filtered", stats.Filtered,
		"skipped", stats.Skipped,
		"terms", stats.Terms,
		"duration", stats.Duration,
	)
	return ix, stats, nil
}

// analyze returns the per-term frequencies of one document.
func (b *Builder) analyze(doc document.Document) map[index.Term]int {
	termFreqs := make(map[index.Term]int)
	for _, field := range document.TextFields {
		value, _ := doc.Value(field)
		for _, tok := range b.analyzer.Tokenize(value) {
			termFreqs[index.Term{Field: field, Text: tok.Term}]++
		}
	}
	termFreqs[index.Term{Field: document.FieldTaskNumber, Text: strconv.Itoa(doc.TaskNumber)}] = 1
	termFreqs[index.Term{Field: document.FieldRelevance, Text: doc.RelevanceTerm()}] = 1
	return termFreqs
}

func (b *Builder) observeBuild(status string, stats BuildStats, start time.Time) {
	if b.metrics == nil {
		return
	}
	b.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	b.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	if status != "ok" {
		return
	}
	b.metrics.DocsIndexedTotal.Add(float64(stats.Accepted))
	b.metrics.DocsSkippedTotal.WithLabelValues("filtered").Add(float64(stats.Filtered))
	b.metrics.DocsSkippedTotal.WithLabelValues("malformed").Add(float64(stats.Skipped))
}
