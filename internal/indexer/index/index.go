// Package index holds the in-memory inverted index: per-field term postings,
// a roaring bitmap of document ids per term, and the stored document table
// used to materialise results.
package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/RoaringBitmap/roaring/v2"
)

// Index is immutable once returned by Writer.Freeze. Every accessor is safe
// for concurrent use; bitmaps and posting lists handed out must be treated
// as read-only.
type Index struct {
	postings map[Term]PostingList
	bitmaps  map[Term]*roaring.Bitmap
	docs     []document.Document
	all      *roaring.Bitmap
}

// Empty returns an index holding no documents.
func Empty() *Index {
	return NewWriter().Freeze()
}

// Postings returns the posting list of term, or nil.
func (ix *Index) Postings(term Term) PostingList {
	return ix.postings[term]
}

// Bitmap returns the set of documents containing term, or nil.
func (ix *Index) Bitmap(term Term) *roaring.Bitmap {
	return ix.bitmaps[term]
}

// DocFreq is the number of documents containing term.
func (ix *Index) DocFreq(term Term) int {
	return len(ix.postings[term])
}

// Frequency returns how often term occurs in docID's field.
func (ix *Index) Frequency(term Term, docID uint32) int {
	return ix.postings[term].Frequency(docID)
}

// AllDocs returns a fresh bitmap of every document id in the index.
func (ix *Index) AllDocs() *roaring.Bitmap {
	return ix.all.Clone()
}

// Document returns the stored document with the given id.
func (ix *Index) Document(id uint32) (document.Document, bool) {
	if int(id) >= len(ix.docs) {
		return document.Document{}, false
	}
	return ix.docs[id], true
}

func (ix *Index) DocCount() int {
	return len(ix.docs)
}

func (ix *Index) TermCount() int {
	return len(ix.postings)
}

// Snapshot lists every term with its postings, sorted by field then text.
func (ix *Index) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(ix.postings))
	for term, postings := range ix.postings {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Term.Field != entries[j].Term.Field {
			return entries[i].Term.Field < entries[j].Term.Field
		}
		return entries[i].Term.Text < entries[j].Term.Text
	})
	return entries
}
