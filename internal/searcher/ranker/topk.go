package ranker

import (
	"container/heap"
	"sort"
)

// topK keeps the best limit docs seen so far. The heap root is the current
// worst kept doc, so each offer is O(log limit).
type topK struct {
	limit int
	h     scoredDocHeap
}

func newTopK(limit int) *topK {
	t := &topK{limit: limit}
	heap.Init(&t.h)
	return t
}

func (t *topK) offer(doc ScoredDoc) {
	if t.limit <= 0 {
		t.h = append(t.h, doc)
		return
	}
	if t.h.Len() < t.limit {
		heap.Push(&t.h, doc)
		return
	}
	if worse(t.h[0], doc) {
		t.h[0] = doc
		heap.Fix(&t.h, 0)
	}
}

func (t *topK) sorted() []ScoredDoc {
	if t.limit <= 0 {
		result := []ScoredDoc(t.h)
		sort.Slice(result, func(i, j int) bool { return worse(result[j], result[i]) })
		return result
	}
	result := make([]ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ScoredDoc)
	}
	return result
}

// worse reports whether a ranks below b: lower score, or equal score and a
// higher doc id.
func worse(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return worse(h[i], h[j]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
