package index

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

// Builder accumulates tokenized documents in doc id order. It is not safe
// for concurrent use; tokenize in parallel, then add sequentially.
type Builder struct {
	mode        tokenizer.Mode
	postings    map[string]PostingList
	docLengths  []int
	totalTokens int64
	fingerprint string
}

func NewBuilder(mode tokenizer.Mode) *Builder {
	return &Builder{
		mode:     mode,
		postings: make(map[string]PostingList),
	}
}

// AddDocument appends a document and returns its doc id. An empty term list
// is a valid document of length zero.
func (b *Builder) AddDocument(terms []string) int {
	docID := len(b.docLengths)
	counts := make(map[string]int, len(terms))
	order := make([]string, 0, len(terms))
	for _, t := range terms {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	for _, t := range order {
		b.postings[t] = append(b.postings[t], Posting{DocID: docID, Frequency: counts[t]})
	}
	b.docLengths = append(b.docLengths, len(terms))
	b.totalTokens += int64(len(terms))
	return docID
}

// SetFingerprint records the corpus fingerprint carried by the built index.
func (b *Builder) SetFingerprint(fp string) {
	b.fingerprint = fp
}

func (b *Builder) DocCount() int {
	return len(b.docLengths)
}

// Build freezes the accumulated documents into an Index and resets the
// builder.
func (b *Builder) Build(params Params) (*Index, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	idx := &Index{
		postings:    b.postings,
		bitmaps:     make(map[string]*roaring.Bitmap, len(b.postings)),
		docLengths:  b.docLengths,
		totalTokens: b.totalTokens,
		params:      params,
		mode:        b.mode,
		fingerprint: b.fingerprint,
	}
	if idx.docLengths == nil {
		idx.docLengths = []int{}
	}
	if n := len(idx.docLengths); n > 0 {
		idx.avgDocLength = float64(b.totalTokens) / float64(n)
	}
	for term, pl := range idx.postings {
		idx.bitmaps[term] = bitmapOf(pl)
	}

	b.postings = make(map[string]PostingList)
	b.docLengths = nil
	b.totalTokens = 0
	b.fingerprint = ""
	return idx, nil
}

// Meta is the non-postings part of a persisted index.
type Meta struct {
	Mode         tokenizer.Mode
	Params       Params
	DocCount     int
	DocLengths   []int
	AvgDocLength float64
	Fingerprint  string
}

// avgTolerance bounds the relative drift allowed between a stored average
// and the one recomputed from document lengths.
const avgTolerance = 1e-9

// FromEntries rebuilds an Index from persisted parts, rejecting anything that
// violates the index invariants with ErrCorruptPersistedData.
func FromEntries(meta Meta, entries []TermEntry) (*Index, error) {
	if err := meta.Params.Validate(); err != nil {
		return nil, apperrors.Corrupt(apperrors.FieldOf(err), "%v", err)
	}
	if meta.Mode == "" {
		return nil, apperrors.Corrupt("mode", "language mode is missing")
	}
	if meta.DocCount < 0 || meta.DocCount != len(meta.DocLengths) {
		return nil, apperrors.Corrupt("doc_lengths",
			"%d document lengths recorded for %d documents", len(meta.DocLengths), meta.DocCount)
	}

	var total int64
	for i, dl := range meta.DocLengths {
		if dl < 0 {
			return nil, apperrors.Corrupt("doc_lengths", "document %d has negative length %d", i, dl)
		}
		total += int64(dl)
	}
	if math.IsNaN(meta.AvgDocLength) || math.IsInf(meta.AvgDocLength, 0) {
		return nil, apperrors.Corrupt("avg_doc_length", "not a finite number")
	}
	if meta.DocCount == 0 {
		if meta.AvgDocLength != 0 {
			return nil, apperrors.Corrupt("avg_doc_length", "empty index must have average 0, got %v", meta.AvgDocLength)
		}
	} else {
		want := float64(total)
		got := meta.AvgDocLength * float64(meta.DocCount)
		if math.Abs(got-want) > avgTolerance*math.Max(1, want) {
			return nil, apperrors.Corrupt("avg_doc_length",
				"average %v does not match %d tokens over %d documents", meta.AvgDocLength, total, meta.DocCount)
		}
	}

	idx := &Index{
		postings:     make(map[string]PostingList, len(entries)),
		bitmaps:      make(map[string]*roaring.Bitmap, len(entries)),
		docLengths:   append([]int{}, meta.DocLengths...),
		totalTokens:  total,
		avgDocLength: meta.AvgDocLength,
		params:       meta.Params,
		mode:         meta.Mode,
		fingerprint:  meta.Fingerprint,
	}
	tfSums := make([]int64, meta.DocCount)
	for _, e := range entries {
		if e.Term == "" {
			return nil, apperrors.Corrupt("postings", "empty term")
		}
		if _, dup := idx.postings[e.Term]; dup {
			return nil, apperrors.Corrupt("postings", "term %q listed twice", e.Term)
		}
		if len(e.Postings) == 0 {
			return nil, apperrors.Corrupt("postings", "term %q has no postings", e.Term)
		}
		prev := -1
		for _, p := range e.Postings {
			if p.DocID < 0 || p.DocID >= meta.DocCount {
				return nil, apperrors.Corrupt("postings", "term %q references doc %d outside [0, %d)", e.Term, p.DocID, meta.DocCount)
			}
			if p.DocID <= prev {
				return nil, apperrors.Corrupt("postings", "term %q doc ids not strictly ascending at %d", e.Term, p.DocID)
			}
			if p.Frequency <= 0 {
				return nil, apperrors.Corrupt("postings", "term %q has tf %d in doc %d", e.Term, p.Frequency, p.DocID)
			}
			prev = p.DocID
			tfSums[p.DocID] += int64(p.Frequency)
		}
		pl := make(PostingList, len(e.Postings))
		copy(pl, e.Postings)
		idx.postings[e.Term] = pl
		idx.bitmaps[e.Term] = bitmapOf(pl)
	}
	for docID, sum := range tfSums {
		if sum != int64(meta.DocLengths[docID]) {
			return nil, apperrors.Corrupt("doc_lengths",
				"document %d has length %d but its postings sum to %d", docID, meta.DocLengths[docID], sum)
		}
	}
	return idx, nil
}
