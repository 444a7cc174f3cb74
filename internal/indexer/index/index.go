// Package index holds the immutable inverted index BM25 scores against:
// postings per term, document frequencies, document lengths and the scoring
// parameters the index was built with.
package index

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params are the BM25 free parameters: K1 controls term-frequency saturation
// and B the strength of document-length normalisation.
type Params struct {
	K1 float64 `json:"k1" yaml:"k1"`
	B  float64 `json:"b" yaml:"b"`
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

func (p Params) Validate() error {
	if math.IsNaN(p.K1) || math.IsInf(p.K1, 0) || p.K1 < 0 {
		return apperrors.Invalid("k1", "k1 must be a finite value >= 0, got %v", p.K1)
	}
	if math.IsNaN(p.B) || p.B < 0 || p.B > 1 {
		return apperrors.Invalid("b", "b must be within [0, 1], got %v", p.B)
	}
	return nil
}

// Index is read-only once built and safe for any number of concurrent
// readers.
type Index struct {
	postings     map[string]PostingList
	bitmaps      map[string]*roaring.Bitmap
	docLengths   []int
	totalTokens  int64
	avgDocLength float64
	params       Params
	mode         tokenizer.Mode
	fingerprint  string
}

// Postings returns the posting list for term, or nil when the term is not in
// the vocabulary. Callers must not modify the returned slice.
func (idx *Index) Postings(term string) PostingList {
	return idx.postings[term]
}

// DocFreq is the number of documents containing term.
func (idx *Index) DocFreq(term string) int {
	return len(idx.postings[term])
}

// Docs returns the set of documents containing term. The bitmap is shared;
// callers must clone it before mutating.
func (idx *Index) Docs(term string) *roaring.Bitmap {
	return idx.bitmaps[term]
}

// Matching returns the documents that contain at least one of terms.
func (idx *Index) Matching(terms []string) *roaring.Bitmap {
	sets := make([]*roaring.Bitmap, 0, len(terms))
	for _, t := range terms {
		if bm, ok := idx.bitmaps[t]; ok {
			sets = append(sets, bm)
		}
	}
	if len(sets) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(sets...)
}

func (idx *Index) TotalDocs() int {
	return len(idx.docLengths)
}

// DocLength returns the token count of docID, or 0 when it is out of range.
func (idx *Index) DocLength(docID int) int {
	if docID < 0 || docID >= len(idx.docLengths) {
		return 0
	}
	return idx.docLengths[docID]
}

// DocLengths returns a copy of every document length in doc id order.
func (idx *Index) DocLengths() []int {
	out := make([]int, len(idx.docLengths))
	copy(out, idx.docLengths)
	return out
}

func (idx *Index) AvgDocLength() float64 {
	return idx.avgDocLength
}

func (idx *Index) TotalTokens() int64 {
	return idx.totalTokens
}

func (idx *Index) Params() Params {
	return idx.params
}

// Mode is the tokenizer mode the index was built with; queries must be
// tokenized the same way.
func (idx *Index) Mode() tokenizer.Mode {
	return idx.mode
}

// Fingerprint identifies the corpus the index was built from. It is empty
// when fingerprinting was disabled.
func (idx *Index) Fingerprint() string {
	return idx.fingerprint
}

func (idx *Index) VocabularySize() int {
	return len(idx.postings)
}

// Terms returns the vocabulary in lexical order.
func (idx *Index) Terms() []string {
	terms := make([]string, 0, len(idx.postings))
	for t := range idx.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Entries returns every term with its postings in lexical term order, the
// shape the persistence codecs write.
func (idx *Index) Entries() []TermEntry {
	terms := idx.Terms()
	entries := make([]TermEntry, 0, len(terms))
	for _, t := range terms {
		entries = append(entries, TermEntry{Term: t, Postings: idx.postings[t]})
	}
	return entries
}

// Stats summarises the index for logs and status endpoints.
type Stats struct {
	Mode           string  `json:"mode"`
	TotalDocs      int     `json:"total_docs"`
	VocabularySize int     `json:"vocabulary_size"`
	TotalTokens    int64   `json:"total_tokens"`
	AvgDocLength   float64 `json:"avg_doc_length"`
	K1             float64 `json:"k1"`
	B              float64 `json:"b"`
	Fingerprint    string  `json:"fingerprint,omitempty"`
}

func (idx *Index) Stats() Stats {
	return Stats{
		Mode:           string(idx.mode),
		TotalDocs:      idx.TotalDocs(),
		VocabularySize: idx.VocabularySize(),
		TotalTokens:    idx.totalTokens,
		AvgDocLength:   idx.avgDocLength,
		K1:             idx.params.K1,
		B:              idx.params.B,
		Fingerprint:    idx.fingerprint,
	}
}

func bitmapOf(postings PostingList) *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range postings {
		bm.Add(uint32(p.DocID))
	}
	bm.RunOptimize()
	return bm
}

// DocStats returns term's frequency in docID alongside the document length.
// TermFreq is 0 when the document does not contain term.
func (idx *Index) DocStats(term string, docID int) DocStats {
	st := DocStats{DocID: docID, DocLen: idx.DocLength(docID)}
	pl := idx.postings[term]
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	if i < len(pl) && pl[i].DocID == docID {
		st.TermFreq = pl[i].Frequency
	}
	return st
}
