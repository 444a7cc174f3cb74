package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/metrics"
)

var corpus = []string{
	"this is a sample document about machine learning",
	"machine learning is fascinating and useful",
	"this document discusses deep learning techniques",
	"another sample about artificial intelligence",
}

type fixture struct {
	mux     *http.ServeMux
	holder  *reload.Holder
	metrics *metrics.Metrics
}

type memBackend struct{ data map[string][]byte }

func (m *memBackend) GetBytes(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, goredis.Nil
}

func (m *memBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.data[key] = value.([]byte)
	return nil
}

func (m *memBackend) FlushByPattern(context.Context, string) (int64, error) {
	n := int64(len(m.data))
	m.data = map[string][]byte{}
	return n, nil
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	cfg := config.Default()
	e, err := indexer.Create(context.Background(), corpus, cfg)
	if err != nil {
		t.Fatal(err)
	}
	holder := &reload.Holder{}
	holder.Swap(e)
	m := metrics.New(prometheus.NewRegistry())
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memBackend{data: map[string][]byte{}}, cfg.Redis, m)
	}
	reloader := reload.NewReloader(holder, func(context.Context) (*indexer.Engine, error) {
		return indexer.Create(context.Background(), corpus[:2], cfg)
	}, m)
	h := New(executor.New(holder), qc, reloader, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{mux: mux, holder: holder, metrics: m}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestSearch(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=machine+learning&limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	res := decode[executor.SearchResult](t, rec)
	if res.TotalHits != 3 || len(res.Results) != 3 {
		t.Fatalf("total_hits=%d results=%d", res.TotalHits, len(res.Results))
	}
	if res.Results[2].DocID != 2 {
		t.Errorf("third result = %d, want 2", res.Results[2].DocID)
	}
	if res.Results[0].Text == "" {
		t.Error("result text missing")
	}
	if res.TermStats["machin"] != 2 || res.TermStats["learn"] != 3 {
		t.Errorf("term_stats = %v", res.TermStats)
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("queries{hit} = %v", got)
	}
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t, false)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=x&limit=0",
		"/api/v1/search?q=x&limit=many",
	} {
		if rec := f.do(t, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchClampsLimit(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=sample&limit=100000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if res := decode[executor.SearchResult](t, rec); len(res.Results) != 2 {
		t.Errorf("results = %d, want 2", len(res.Results))
	}
}

func TestSearchStopWordsOnly(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=the+and+of")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decode[executor.SearchResult](t, rec)
	if len(res.Results) != 0 || res.TotalHits != 0 {
		t.Errorf("result = %+v", res)
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("zero_result")); got != 1 {
		t.Errorf("queries{zero_result} = %v", got)
	}
}

func TestSearchWithoutIndex(t *testing.T) {
	f := newFixture(t, false)
	f.holder.Swap(nil)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=machine")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSearchUsesCache(t *testing.T) {
	f := newFixture(t, true)
	first := f.do(t, http.MethodGet, "/api/v1/search?q=machine+learning")
	second := f.do(t, http.MethodGet, "/api/v1/search?q=learning+machine+machine")
	if first.Header().Get("X-Cache") != "miss" {
		t.Errorf("first X-Cache = %q", first.Header().Get("X-Cache"))
	}
	// Reordered terms score in a different order, so they get their own entry.
	if second.Header().Get("X-Cache") != "miss" {
		t.Errorf("second X-Cache = %q", second.Header().Get("X-Cache"))
	}
	third := f.do(t, http.MethodGet, "/api/v1/search?q=Machine+Learning")
	if third.Header().Get("X-Cache") != "hit" {
		t.Errorf("third X-Cache = %q", third.Header().Get("X-Cache"))
	}
	a := decode[executor.SearchResult](t, first)
	c := decode[executor.SearchResult](t, third)
	if len(a.Results) != len(c.Results) || a.Results[0].Score != c.Results[0].Score {
		t.Errorf("cached result differs: %+v vs %+v", a.Results, c.Results)
	}
	if c.Query != "Machine Learning" {
		t.Errorf("cached result query = %q", c.Query)
	}

	stats := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/cache/stats"))
	if stats["hits"].(float64) != 1 {
		t.Errorf("cache stats = %v", stats)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusOK {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}

func TestSearchLogsSpanTree(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	f := newFixture(t, true)
	if rec := f.do(t, http.MethodGet, "/api/v1/search?q=deep+learning"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := buf.String()
	for _, want := range []string{"span=search", "span=plan", "span=cache", "span=rank", "cache=miss"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	f := newFixture(t, false)
	stats := decode[map[string]string](t, f.do(t, http.MethodGet, "/api/v1/cache/stats"))
	if stats["status"] != "disabled" {
		t.Errorf("stats = %v", stats)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}

func TestExplain(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/explain?q=machine+learning&doc=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	ex := decode[ranker.Explanation](t, rec)
	if ex.DocID != 1 || len(ex.Terms) != 2 || ex.Score <= 0 {
		t.Errorf("explanation = %+v", ex)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/explain?q=machine&doc=40"); rec.Code != http.StatusBadRequest {
		t.Errorf("out of range status = %d", rec.Code)
	} else if body := decode[map[string]string](t, rec); body["field"] != "doc_id" {
		t.Errorf("error body = %v", body)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/explain?q=machine&doc=x"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad doc status = %d", rec.Code)
	}
}

func TestIndexStatsAndReload(t *testing.T) {
	f := newFixture(t, false)
	body := decode[map[string]json.RawMessage](t, f.do(t, http.MethodGet, "/api/v1/index/stats"))
	var stats struct {
		TotalDocs int    `json:"total_docs"`
		Mode      string `json:"mode"`
	}
	if err := json.Unmarshal(body["index"], &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocs != 4 || stats.Mode != "english" {
		t.Errorf("stats = %+v", stats)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/index/reload"); rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d: %s", rec.Code, rec.Body)
	}
	if got := f.holder.Current().Stats().TotalDocs; got != 2 {
		t.Errorf("TotalDocs after reload = %d, want 2", got)
	}
}
