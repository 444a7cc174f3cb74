package ranker

import (
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
)

type TermScore struct {
	Term         string  `json:"term"`
	DocFreq      int     `json:"df"`
	IDF          float64 `json:"idf"`
	TermFreq     int     `json:"tf"`
	Contribution float64 `json:"contribution"`
}

// Explanation breaks a document's score down by query term. Score equals the
// value Rank reports for the same terms.
type Explanation struct {
	DocID        int         `json:"doc_id"`
	DocLength    int         `json:"doc_length"`
	AvgDocLength float64     `json:"avg_doc_length"`
	K1           float64     `json:"k1"`
	B            float64     `json:"b"`
	Score        float64     `json:"score"`
	Terms        []TermScore `json:"terms"`
}

func Explain(idx *index.Index, terms []string, docID int) Explanation {
	params := idx.Params()
	exp := Explanation{
		DocID:        docID,
		DocLength:    idx.DocLength(docID),
		AvgDocLength: idx.AvgDocLength(),
		K1:           params.K1,
		B:            params.B,
		Terms:        make([]TermScore, 0, len(terms)),
	}
	n := idx.TotalDocs()
	for _, term := range Distinct(terms) {
		st := idx.DocStats(term, docID)
		ts := TermScore{
			Term:     term,
			DocFreq:  idx.DocFreq(term),
			TermFreq: st.TermFreq,
		}
		if ts.DocFreq > 0 {
			ts.IDF = IDF(n, ts.DocFreq)
			ts.Contribution = ts.IDF * TFNorm(float64(st.TermFreq), float64(st.DocLen), exp.AvgDocLength, params)
		}
		exp.Score += ts.Contribution
		exp.Terms = append(exp.Terms, ts)
	}
	return exp
}
