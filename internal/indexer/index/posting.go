package index

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     int `json:"doc_id" yaml:"doc_id"`
	Frequency int `json:"tf" yaml:"tf"`
}

// PostingList is ordered by ascending DocID with no duplicates.
type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocStats is the per-document view of a single term used when explaining a
// score.
type DocStats struct {
	DocID    int
	DocLen   int
	TermFreq int
}
