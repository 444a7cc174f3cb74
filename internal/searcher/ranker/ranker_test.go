package ranker

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
)

func build(t *testing.T, params index.Params, docs ...[]string) *index.Index {
	t.Helper()
	b := index.NewBuilder(tokenizer.ModeEnglish)
	for _, d := range docs {
		b.AddDocument(d)
	}
	idx, err := b.Build(params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12
}

func TestIDF(t *testing.T) {
	tests := []struct {
		n, df int
		want  float64
	}{
		{n: 4, df: 1, want: math.Log((4-1+0.5)/(1+0.5) + 1)},
		{n: 4, df: 4, want: math.Log(0.5/4.5 + 1)},
		{n: 1, df: 1, want: math.Log(0.5/1.5 + 1)},
	}
	for _, tt := range tests {
		if got := IDF(tt.n, tt.df); !almostEqual(got, tt.want) {
			t.Errorf("IDF(%d, %d) = %v, want %v", tt.n, tt.df, got, tt.want)
		}
	}
	for df := 1; df <= 100; df++ {
		if IDF(100, df) <= 0 {
			t.Fatalf("IDF(100, %d) not positive", df)
		}
	}
}

func TestRankMatchesFormula(t *testing.T) {
	p := index.DefaultParams()
	idx := build(t, p,
		[]string{"a", "b"},
		[]string{"a", "a", "c"},
		[]string{"c"},
	)
	results := Rank(idx, []string{"a"}, 10)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	idf := math.Log((3-2+0.5)/(2+0.5) + 1)
	avgdl := 2.0
	want := map[int]float64{
		0: idf * (1 * (p.K1 + 1)) / (1 + p.K1*(1-p.B+p.B*2/avgdl)),
		1: idf * (2 * (p.K1 + 1)) / (2 + p.K1*(1-p.B+p.B*3/avgdl)),
	}
	for _, r := range results {
		if !almostEqual(r.Score, want[r.DocID]) {
			t.Errorf("doc %d score = %v, want %v", r.DocID, r.Score, want[r.DocID])
		}
	}
	if results[0].DocID != 1 {
		t.Errorf("higher tf should rank first, got %+v", results)
	}
}

func TestRankExcludesNonMatchingDocs(t *testing.T) {
	idx := build(t, index.DefaultParams(),
		[]string{"x"},
		[]string{"y"},
		[]string{"x", "y"},
	)
	for _, r := range Rank(idx, []string{"x"}, 10) {
		if r.DocID == 1 {
			t.Fatal("doc without query terms returned")
		}
	}
}

func TestRankTiesByDocID(t *testing.T) {
	idx := build(t, index.DefaultParams(),
		[]string{"z", "q"},
		[]string{"q", "w"},
		[]string{"q", "e"},
		[]string{"r", "t"},
	)
	results := Rank(idx, []string{"q"}, 10)
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	for i, r := range results {
		if r.DocID != i {
			t.Errorf("position %d holds doc %d", i, r.DocID)
		}
	}
	top := Rank(idx, []string{"q"}, 2)
	if len(top) != 2 || top[0].DocID != 0 || top[1].DocID != 1 {
		t.Errorf("bounded ties = %+v", top)
	}
}

func TestRankTopKBound(t *testing.T) {
	docs := make([][]string, 50)
	for i := range docs {
		docs[i] = []string{"common"}
		for j := 0; j < i%7; j++ {
			docs[i] = append(docs[i], "common")
		}
	}
	idx := build(t, index.DefaultParams(), docs...)
	all := Rank(idx, []string{"common"}, 0)
	if len(all) != 50 {
		t.Fatalf("unbounded rank returned %d", len(all))
	}
	for _, k := range []int{1, 5, 49, 50, 80} {
		got := Rank(idx, []string{"common"}, k)
		want := k
		if want > 50 {
			want = 50
		}
		if len(got) != want {
			t.Errorf("k=%d: got %d results", k, len(got))
		}
		for i := range got {
			if got[i] != all[i] {
				t.Errorf("k=%d: result %d = %+v, want %+v", k, i, got[i], all[i])
			}
		}
	}
	for i := 1; i < len(all); i++ {
		if worse(all[i-1], all[i]) {
			t.Fatalf("results out of order at %d: %+v, %+v", i, all[i-1], all[i])
		}
	}
}

func TestRankUnknownTerms(t *testing.T) {
	idx := build(t, index.DefaultParams(), []string{"a", "b"}, []string{"b"})
	if got := Rank(idx, []string{"nope"}, 5); len(got) != 0 {
		t.Errorf("unknown term matched %+v", got)
	}
	with := Rank(idx, []string{"a", "nope"}, 5)
	without := Rank(idx, []string{"a"}, 5)
	if len(with) != len(without) || with[0] != without[0] {
		t.Errorf("unknown term changed ranking: %+v vs %+v", with, without)
	}
}

func TestRankDuplicateQueryTerms(t *testing.T) {
	idx := build(t, index.DefaultParams(), []string{"a", "b"}, []string{"b"})
	once := Rank(idx, []string{"a", "b"}, 5)
	twice := Rank(idx, []string{"a", "b", "a", "b"}, 5)
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("repeated terms changed result %d: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestRankEmptyIndex(t *testing.T) {
	idx := build(t, index.DefaultParams())
	if got := Rank(idx, []string{"a"}, 3); got == nil || len(got) != 0 {
		t.Errorf("empty index returned %#v", got)
	}
	if got := Rank(nil, []string{"a"}, 3); len(got) != 0 {
		t.Errorf("nil index returned %#v", got)
	}
}

func TestScoreMonotoneInTermFrequency(t *testing.T) {
	p := index.DefaultParams()
	prev := 0.0
	for tf := 1; tf <= 20; tf++ {
		s := TFNorm(float64(tf), 10, 10, p)
		if s <= prev {
			t.Fatalf("tf=%d score %v not above %v", tf, s, prev)
		}
		prev = s
	}
	if prev >= p.K1+1 {
		t.Errorf("saturation bound exceeded: %v", prev)
	}
}

func TestScoresNonNegativeWhenTermEverywhere(t *testing.T) {
	idx := build(t, index.DefaultParams(),
		[]string{"the", "cat"},
		[]string{"the", "dog"},
		[]string{"the"},
	)
	for _, r := range Rank(idx, []string{"the"}, 10) {
		if r.Score < 0 {
			t.Errorf("doc %d negative score %v", r.DocID, r.Score)
		}
	}
}

func TestRankDeterministic(t *testing.T) {
	idx := build(t, index.DefaultParams(),
		[]string{"a", "b", "c"},
		[]string{"c", "b"},
		[]string{"a", "a", "d"},
		[]string{"d", "c", "a", "b"},
	)
	first := Rank(idx, []string{"d", "a", "c"}, 3)
	for i := 0; i < 10; i++ {
		again := Rank(idx, []string{"d", "a", "c"}, 3)
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d differs at %d", i, j)
			}
		}
	}
}

func TestExplainSumsToRankScore(t *testing.T) {
	idx := build(t, index.Params{K1: 1.2, B: 0.5},
		[]string{"a", "b", "c"},
		[]string{"c", "b", "b"},
		[]string{"a", "a", "d"},
	)
	query := []string{"b", "a", "missing"}
	for _, r := range Rank(idx, query, 0) {
		exp := Explain(idx, query, r.DocID)
		if exp.Score != r.Score {
			t.Errorf("doc %d: explain %v, rank %v", r.DocID, exp.Score, r.Score)
		}
		if len(exp.Terms) != 3 {
			t.Errorf("doc %d: %d term rows", r.DocID, len(exp.Terms))
		}
		if exp.Terms[2].Contribution != 0 || exp.Terms[2].DocFreq != 0 {
			t.Errorf("missing term contributed: %+v", exp.Terms[2])
		}
	}
}
