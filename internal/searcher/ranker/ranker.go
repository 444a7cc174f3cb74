// Package ranker scores documents against a bag of query terms with Okapi
// BM25.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
)

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// Rank scores every document that contains at least one distinct query term
// and returns the best topK by descending score, ties broken by ascending
// doc id. topK <= 0 returns every match. Unknown terms contribute nothing.
func Rank(idx *index.Index, terms []string, topK int) []ScoredDoc {
	terms = Distinct(terms)
	if idx == nil || idx.TotalDocs() == 0 || len(terms) == 0 {
		return []ScoredDoc{}
	}
	candidates := idx.Matching(terms)
	if candidates.IsEmpty() {
		return []ScoredDoc{}
	}

	// scores[i] belongs to the i-th smallest candidate doc id. Accumulating
	// in query order, then doc order, keeps sums bit-for-bit reproducible.
	scores := make([]float64, candidates.GetCardinality())
	params := idx.Params()
	n := idx.TotalDocs()
	avgdl := idx.AvgDocLength()
	for _, term := range terms {
		postings := idx.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := IDF(n, len(postings))
		for _, p := range postings {
			slot := candidates.Rank(uint32(p.DocID)) - 1
			scores[slot] += idf * TFNorm(float64(p.Frequency), float64(idx.DocLength(p.DocID)), avgdl, params)
		}
	}

	top := newTopK(topK)
	it := candidates.Iterator()
	for i := 0; it.HasNext(); i++ {
		top.offer(ScoredDoc{DocID: int(it.Next()), Score: scores[i]})
	}
	return top.sorted()
}

// IDF is the BM25 inverse document frequency ln((N-df+0.5)/(df+0.5)+1).
// It is never negative, even when a term occurs in every document.
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// TFNorm is the saturated, length-normalised term frequency component.
func TFNorm(termFreq, docLength, avgDocLength float64, p index.Params) float64 {
	if avgDocLength == 0 || termFreq == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	return (termFreq * (p.K1 + 1)) / denominator
}

// Distinct drops repeated and empty terms, keeping first occurrences in
// order.
func Distinct(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
