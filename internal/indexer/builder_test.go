package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocs() []document.Document {
	return []document.Document{
		{Title: "Video annotation", Abstract: "content based video annotation", TaskNumber: 3, Query: "video", Relevant: true},
		{Title: "Other", Abstract: "unrelated text", TaskNumber: 3, Query: "text", Relevant: false},
		{Title: "Elsewhere", Abstract: "video video video", TaskNumber: 5, Query: "video"},
	}
}

func TestBuildIndexesEveryField(t *testing.T) {
	ix, stats, err := NewBuilder(nil).Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Accepted)
	assert.Equal(t, 3, ix.DocCount())

	assert.Equal(t, index.PostingList{{DocID: 0, Frequency: 1}, {DocID: 2, Frequency: 3}},
		ix.Postings(index.Term{Field: "abstract", Text: "video"}))
	assert.Equal(t, []uint32{0}, ix.Bitmap(index.Term{Field: "title", Text: "video"}).ToArray())
	assert.Equal(t, []uint32{0, 2}, ix.Bitmap(index.Term{Field: "query", Text: "video"}).ToArray())
	assert.Equal(t, []uint32{0, 1}, ix.Bitmap(index.Term{Field: "taskNumber", Text: "3"}).ToArray())
	assert.Equal(t, []uint32{0}, ix.Bitmap(index.Term{Field: "relevance", Text: "1"}).ToArray())
	assert.Equal(t, []uint32{1, 2}, ix.Bitmap(index.Term{Field: "relevance", Text: "0"}).ToArray())
	assert.Nil(t, ix.Bitmap(index.Term{Field: "abstract", Text: "based video"}), "text fields are tokenised")
}

func TestBuildEveryPostingHasPositiveFrequency(t *testing.T) {
	ix, _, err := NewBuilder(nil).Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	for _, entry := range ix.Snapshot() {
		require.NotEmpty(t, entry.Postings, entry.Term.String())
		for i, p := range entry.Postings {
			assert.GreaterOrEqual(t, p.Frequency, 1, entry.Term.String())
			if i > 0 {
				assert.Less(t, entry.Postings[i-1].DocID, p.DocID, "postings ascend")
			}
		}
	}
}

func TestBuildWithTaskFilter(t *testing.T) {
	ix, stats, err := NewBuilder(nil, WithFilter(document.TaskFilter(3))).Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Filtered)
	assert.Equal(t, 2, ix.DocCount())
	// ids are dense over accepted documents only
	d, ok := ix.Document(1)
	require.True(t, ok)
	assert.Equal(t, "Other", d.Title)
	assert.Nil(t, ix.Bitmap(index.Term{Field: "taskNumber", Text: "5"}))
}

func TestBuildEmpty(t *testing.T) {
	ix, stats, err := NewBuilder(nil).Build(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, ix)
	assert.Equal(t, 0, ix.DocCount())
	assert.Equal(t, 0, ix.TermCount())
	assert.Equal(t, BuildStats{Duration: stats.Duration}, stats)
}

func TestBuildMalformedSkippedByDefault(t *testing.T) {
	docs := []document.Document{
		{Title: "first", TaskNumber: 3},
		{Title: " ", Abstract: "", TaskNumber: 3},
		{Title: "third", TaskNumber: 3},
	}
	ix, stats, err := NewBuilder(nil).Build(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Accepted)
	d, ok := ix.Document(1)
	require.True(t, ok)
	assert.Equal(t, "third", d.Title)
}

func TestBuildMalformedRejectedWhenStrict(t *testing.T) {
	docs := []document.Document{
		{Title: "first"},
		{TaskNumber: -2, Title: "bad"},
	}
	ix, _, err := NewBuilder(nil, WithStrict(true)).Build(context.Background(), docs)
	assert.Nil(t, ix)
	require.ErrorIs(t, err, apperrors.ErrMalformedDocument)

	var malformed *apperrors.MalformedDocumentError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 1, malformed.Position)
	assert.Equal(t, document.FieldTaskNumber, malformed.Field)
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewBuilder(nil).Build(ctx, sampleDocs())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildUsesConfiguredAnalyzer(t *testing.T) {
	a := tokenizer.New(tokenizer.WithStemming(true))
	b := NewBuilder(a)
	assert.Same(t, a, b.Analyzer())

	ix, _, err := b.Build(context.Background(), []document.Document{{Abstract: "annotated videos"}})
	require.NoError(t, err)
	assert.NotNil(t, ix.Bitmap(index.Term{Field: "abstract", Text: "video"}))
	assert.Nil(t, ix.Bitmap(index.Term{Field: "abstract", Text: "videos"}))
}

func TestBuildRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	_, _, err := NewBuilder(nil, WithMetrics(m), WithFilter(document.TaskFilter(3))).
		Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	// no panic and collectors are usable after the build
	m.IndexTerms.Set(1)
}

func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		docs := make([]document.Document, n)
		for i := range docs {
			docs[i] = document.Document{
				Title:      fmt.Sprintf("feed item %d about video retrieval", i),
				Abstract:   "content based video annotation with semantic indexing and ranking of news feeds",
				TaskNumber: i % 5,
				Query:      "video annotation",
				Relevant:   i%2 == 0,
			}
		}
		builder := NewBuilder(nil)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, _, err := builder.Build(context.Background(), docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
