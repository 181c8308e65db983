package ranker

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTermWeight(t *testing.T) {
	assert.Equal(t, 0.0, TermWeight(0))
	assert.Equal(t, 0.0, TermWeight(-1))
	assert.Equal(t, 1.0, TermWeight(1))
	assert.InDelta(t, 1+math.Log(2), TermWeight(2), 1e-12)
}

func TestTermWeightMonotonic(t *testing.T) {
	prev := TermWeight(1)
	for f := 2; f < 50; f++ {
		w := TermWeight(f)
		assert.Greater(t, w, prev, "freq %d", f)
		prev = w
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil))
	assert.Equal(t, 2.0, Score([]int{1, 1}))
	assert.Equal(t, 2.6931, Score([]int{2, 1}))
}

func TestRankOrdersByScoreThenID(t *testing.T) {
	docs := []ScoredDoc{
		{DocID: 4, Score: 1},
		{DocID: 2, Score: 3},
		{DocID: 1, Score: 1},
		{DocID: 3, Score: 3},
	}
	ranked := Rank(docs, 0)
	ids := make([]uint32, len(ranked))
	for i, d := range ranked {
		ids[i] = d.DocID
	}
	assert.Equal(t, []uint32{2, 3, 1, 4}, ids)
}

func TestRankTruncates(t *testing.T) {
	docs := make([]ScoredDoc, 100)
	for i := range docs {
		docs[i] = ScoredDoc{DocID: uint32(i), Score: float64(i % 7)}
	}
	ranked := Rank(docs, 30)
	assert.Len(t, ranked, 30)
	assert.Equal(t, 6.0, ranked[0].Score)

	assert.Len(t, Rank([]ScoredDoc{{DocID: 1}}, 30), 1)
	assert.Empty(t, Rank(nil, 30))
}

func BenchmarkRank(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			src := make([]ScoredDoc, n)
			for i := range src {
				src[i] = ScoredDoc{DocID: uint32(i), Score: Score([]int{(i % 10) + 1, (i % 3) + 1})}
			}
			work := make([]ScoredDoc, n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				copy(work, src)
				_ = Rank(work, 30)
			}
		})
	}
}
