package index

// Term is an index key: a normalised token scoped to one field. The same
// text in two fields is two distinct terms.
type Term struct {
	Field string
	Text  string
}

func (t Term) String() string {
	return t.Field + ":" + t.Text
}

// Posting records that a document holds a term Frequency (>= 1) times.
type Posting struct {
	DocID     uint32
	Frequency int
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

// Frequency returns the in-field frequency for docID, or 0 if the document
// is not in the list.
func (pl PostingList) Frequency(docID uint32) int {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pl[mid].DocID < docID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(pl) && pl[lo].DocID == docID {
		return pl[lo].Frequency
	}
	return 0
}

type TermEntry struct {
	Term     Term
	Postings PostingList
}
