package index

import (
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/RoaringBitmap/roaring/v2"
)

// Writer accumulates documents into a new Index. It is single-use and not
// safe for concurrent use; Freeze hands its contents over to the Index.
type Writer struct {
	postings map[Term]PostingList
	bitmaps  map[Term]*roaring.Bitmap
	docs     []document.Document
	all      *roaring.Bitmap
}

func NewWriter() *Writer {
	return &Writer{
		postings: make(map[Term]PostingList),
		bitmaps:  make(map[Term]*roaring.Bitmap),
		all:      roaring.New(),
	}
}

// NextID is the id the next added document will receive.
func (w *Writer) NextID() uint32 {
	return uint32(len(w.docs))
}

// Add stores doc under the next sequential id and records its term
// frequencies. Terms with a frequency below 1 are ignored.
func (w *Writer) Add(doc document.Document, termFreqs map[Term]int) uint32 {
	id := w.NextID()
	doc.ID = id
	w.docs = append(w.docs, doc)
	w.all.Add(id)

	for term, freq := range termFreqs {
		if freq < 1 {
			continue
		}
		// ids only grow, so appending keeps the list sorted
		w.postings[term] = append(w.postings[term], Posting{DocID: id, Frequency: freq})
		bm, ok := w.bitmaps[term]
		if !ok {
			bm = roaring.New()
			w.bitmaps[term] = bm
		}
		bm.Add(id)
	}
	return id
}

// Freeze returns the finished Index. The Writer must not be used afterwards.
func (w *Writer) Freeze() *Index {
	for _, bm := range w.bitmaps {
		bm.RunOptimize()
	}
	ix := &Index{
		postings: w.postings,
		bitmaps:  w.bitmaps,
		docs:     w.docs,
		all:      w.all,
	}
	*w = Writer{}
	return ix
}
