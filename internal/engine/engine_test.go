package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() *Engine {
	return New(config.SearchConfig{MaxResults: config.DefaultMaxResults}, nil)
}

func sampleDocs() []document.Document {
	return []document.Document{
		{Title: "Video annotation", Abstract: "content based video annotation", TaskNumber: 3, Relevant: true},
		{Title: "Unrelated", Abstract: "unrelated text", TaskNumber: 3},
		{Title: "Audio", Abstract: "content based audio retrieval", TaskNumber: 4, Relevant: true},
	}
}

func TestEvaluateBeforeBuild(t *testing.T) {
	e := newEngine()
	assert.False(t, e.Ready())
	assert.Zero(t, e.Generation())

	res, err := e.Evaluate(context.Background(), parser.Query{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotBuilt)
	var notBuilt *apperrors.IndexNotBuiltError
	assert.True(t, errors.As(err, &notBuilt))

	_, err = e.EvaluateAll(context.Background(), []parser.Query{{}})
	assert.ErrorIs(t, err, apperrors.ErrIndexNotBuilt)

	assert.Equal(t, Stats{}, e.Stats())
}

func TestBuildThenEvaluate(t *testing.T) {
	e := newEngine()
	stats, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Accepted)
	assert.True(t, e.Ready())
	assert.Equal(t, uint64(1), e.Generation())

	res, err := e.Evaluate(context.Background(), parser.FromLists(nil, nil, []string{"content", "video"}, nil, nil))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, uint32(0), res.Results[0].DocID)
	assert.Greater(t, res.Results[0].Score, 0.0)
}

func TestEmptyCollectionIsNotAnError(t *testing.T) {
	e := newEngine()
	_, err := e.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, e.Ready())

	res, err := e.Evaluate(context.Background(), parser.FromLists([]string{"anything"}, nil, nil, nil, nil))
	require.NoError(t, err, "no results is an outcome, not an error")
	assert.Empty(t, res.Results)
}

func TestRebuildBumpsGeneration(t *testing.T) {
	e := newEngine()
	_, err := e.Build(context.Background(), sampleDocs()[:1])
	require.NoError(t, err)
	_, err = e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.Generation())
	assert.Equal(t, 3, e.Stats().Documents)
}

func TestFailedBuildKeepsPreviousIndex(t *testing.T) {
	e := New(config.SearchConfig{MaxResults: 30}, nil, WithBuildOptions())
	_, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Build(ctx, sampleDocs())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(1), e.Generation())

	res, err := e.Evaluate(context.Background(), parser.Query{})
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	task := 3
	cfg.Index.TaskNumber = &task
	cfg.Index.Strict = true
	cfg.Analyzer.Stemming = true
	e := FromConfig(cfg)

	stats, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Filtered)

	res, err := e.Evaluate(context.Background(), parser.FromLists(nil, nil, []string{"annotations"}, nil, nil))
	require.NoError(t, err)
	assert.Len(t, res.Results, 1, "stemmed query matches stemmed index")

	_, err = e.Build(context.Background(), []document.Document{{TaskNumber: 3}})
	assert.ErrorIs(t, err, apperrors.ErrMalformedDocument)
}

func TestNewAnalyzer(t *testing.T) {
	assert.Equal(t, []string{"video"}, NewAnalyzer(config.AnalyzerConfig{}).Terms("the video"))
	assert.Equal(t, []string{"the", "video"}, NewAnalyzer(config.AnalyzerConfig{DisableStopwords: true}).Terms("the video"))
	assert.Equal(t, []string{"the"}, NewAnalyzer(config.AnalyzerConfig{Stopwords: []string{"video"}}).Terms("the video"))
	assert.Equal(t, []string{"video"}, NewAnalyzer(config.AnalyzerConfig{MinTokenLength: 3}).Terms("ab cd video"))
}

func TestResultCap(t *testing.T) {
	docs := make([]document.Document, 100)
	for i := range docs {
		docs[i] = document.Document{Abstract: fmt.Sprintf("feed item %d", i)}
	}
	e := newEngine()
	_, err := e.Build(context.Background(), docs)
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), parser.FromLists(nil, nil, []string{"feed"}, nil, nil))
	require.NoError(t, err)
	assert.Len(t, res.Results, 30)
	assert.Equal(t, 100, res.TotalHits)

	res, err = e.EvaluateLimit(context.Background(), parser.Query{}, 5)
	require.NoError(t, err)
	assert.Len(t, res.Results, 5)

	res, err = e.EvaluateLimit(context.Background(), parser.Query{}, 500)
	require.NoError(t, err)
	assert.Len(t, res.Results, 30)
}

func TestEvaluateAll(t *testing.T) {
	e := newEngine()
	_, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)

	queries := []parser.Query{
		parser.FromLists(nil, nil, []string{"content"}, nil, nil),
		parser.FromLists(nil, nil, []string{"content"}, []string{"audio"}, nil),
		parser.FromLists(nil, nil, nil, nil, []string{"0"}),
	}
	results, err := e.EvaluateAll(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Len(t, results[0].Results, 2)
	assert.Len(t, results[1].Results, 1)
	require.Len(t, results[2].Results, 1)
	assert.Equal(t, uint32(1), results[2].Results[0].DocID)
}

func TestTopTerms(t *testing.T) {
	e := newEngine()
	_, err := e.TopTerms("relevance", 0)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotBuilt)

	_, err = e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)

	terms, err := e.TopTerms("relevance", 0)
	require.NoError(t, err)
	assert.Equal(t, []TermStat{{Term: "relevance:1", DocFreq: 2}, {Term: "relevance:0", DocFreq: 1}}, terms)

	terms, err = e.TopTerms("", 1)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, 2, terms[0].DocFreq)

	_, err = e.TopTerms("author", 10)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
}

func TestDocument(t *testing.T) {
	e := newEngine()
	_, err := e.Document(0)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotBuilt)

	_, err = e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)

	doc, err := e.Document(2)
	require.NoError(t, err)
	assert.Equal(t, "Audio", doc.Title)
	assert.Equal(t, uint32(2), doc.ID)

	_, err = e.Document(3)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestInvalidQuery(t *testing.T) {
	e := newEngine()
	_, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), parser.Query{Clauses: []parser.Clause{{Field: "author", Occur: parser.Must, Text: "x"}}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
	assert.True(t, e.Ready(), "a bad query does not disturb the engine")
}

func TestConcurrentEvaluateDuringRebuild(t *testing.T) {
	e := newEngine()
	_, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)

	q := parser.FromLists(nil, nil, []string{"content"}, nil, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res, err := e.Evaluate(context.Background(), q)
				if err != nil {
					errs <- err
					return
				}
				if len(res.Results) != 2 {
					errs <- fmt.Errorf("got %d results", len(res.Results))
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := e.Build(context.Background(), sampleDocs())
		require.NoError(t, err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, uint64(6), e.Generation())
}

func TestMetricsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(config.SearchConfig{MaxResults: 30}, nil, WithMetrics(metrics.New(reg)))
	_, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 0 {
			continue
		}
		if g := f.GetMetric()[0].GetGauge(); g != nil {
			values[f.GetName()] = g.GetValue()
		}
	}
	assert.Equal(t, 3.0, values["index_documents"])
	assert.Equal(t, float64(e.Stats().Terms), values["index_terms"])
}
