// Package ranker scores matched documents and orders them for output.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
)

type ScoredDoc struct {
	DocID    uint32            `json:"doc_id"`
	Score    float64           `json:"score"`
	Document document.Document `json:"document"`
}

// TermWeight is the contribution of one required term occurring freq times
// in the document's field: 1 + ln(freq). It is 0 for freq < 1.
func TermWeight(freq int) float64 {
	if freq < 1 {
		return 0
	}
	return 1 + math.Log(float64(freq))
}

// Score sums TermWeight over the per-document frequencies of the required
// terms. A document matched by no required term scores 0.
func Score(freqs []int) float64 {
	var score float64
	for _, f := range freqs {
		score += TermWeight(f)
	}
	return math.Round(score*10000) / 10000
}

// Rank sorts docs by descending score, breaking ties by ascending DocID,
// and truncates to limit. A limit <= 0 keeps every document. docs is
// sorted in place.
func Rank(docs []ScoredDoc, limit int) []ScoredDoc {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
