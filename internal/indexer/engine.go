// Package indexer ties tokenization, index building, scoring and
// persistence together. An Engine is an immutable index plus, optionally,
// the corpus it was built from so results can carry the original text.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/resilience"
)

// Result is one ranked document. Text is empty when the engine was opened
// without its corpus.
type Result struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

type Engine struct {
	idx      *index.Index
	corpus   []string
	registry *tokenizer.Registry
	snapCfg  config.SnapshotConfig
	logger   *slog.Logger
}

type options struct {
	registry *tokenizer.Registry
	metrics  *metrics.Metrics
}

type Option func(*options)

// WithRegistry shares a tokenizer registry between engines, so dictionaries
// are loaded once per process.
func WithRegistry(r *tokenizer.Registry) Option {
	return func(o *options) { o.registry = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func resolve(cfg *config.Config, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = tokenizer.NewRegistry(cfg.Tokenizer)
	}
	return o
}

// defaultRegistry backs Search calls without WithRegistry, so the Chinese
// dictionary is loaded once per process rather than once per call.
var defaultRegistry = sync.OnceValue(func() *tokenizer.Registry {
	return tokenizer.NewRegistry(config.Default().Tokenizer)
})

// searchOptions puts the shared registry ahead of opts; a WithRegistry in
// opts still wins.
func searchOptions(opts []Option) []Option {
	return append([]Option{WithRegistry(defaultRegistry())}, opts...)
}

// Search builds a throwaway index over corpus and returns the topK documents
// for query. Use Create when the same corpus is queried more than once.
func Search(ctx context.Context, corpus []string, query string, mode string, topK int, opts ...Option) ([]Result, error) {
	if topK < 1 {
		return nil, apperrors.Invalid("top_k", "top_k must be at least 1, got %d", topK)
	}
	cfg := config.Default()
	cfg.Index.Mode = mode
	cfg.Index.Fingerprint = false
	e, err := Create(ctx, corpus, cfg, searchOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return e.Search(query, topK)
}

// Create tokenizes corpus on a bounded worker pool and builds the index. The
// build is all-or-nothing: any failure, including cancellation, returns no
// engine.
func Create(ctx context.Context, corpus []string, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := resolve(cfg, opts)
	logger := slog.Default().With("component", "indexer")
	start := time.Now()

	mode := tokenizer.ParseMode(cfg.Index.Mode)
	strategy, err := o.registry.Lookup(mode)
	if err != nil {
		return nil, err
	}
	params := index.Params{K1: cfg.Index.K1, B: cfg.Index.B}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	docs, err := tokenizeCorpus(ctx, corpus, strategy, cfg.Index.Workers)
	if err != nil {
		return nil, err
	}
	b := index.NewBuilder(mode)
	for _, terms := range docs {
		b.AddDocument(terms)
	}
	if cfg.Index.Fingerprint {
		b.SetFingerprint(snapshot.Fingerprint(corpus))
	}
	idx, err := b.Build(params)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if o.metrics != nil {
		o.metrics.IndexBuildDuration.Observe(elapsed.Seconds())
	}
	logger.Info("index built",
		"mode", mode,
		"docs", idx.TotalDocs(),
		"terms", idx.VocabularySize(),
		"avg_doc_length", idx.AvgDocLength(),
		"duration", elapsed,
	)
	return &Engine{
		idx:      idx,
		corpus:   corpus,
		registry: o.registry,
		snapCfg:  cfg.Snapshot,
		logger:   logger,
	}, nil
}

func tokenizeCorpus(ctx context.Context, corpus []string, s tokenizer.Strategy, workers int) ([][]string, error) {
	docs := make([][]string, len(corpus))
	g, gctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, text := range corpus {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i] = tokenizer.Terms(s.Tokenize(text))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tokenizing corpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tokenizing corpus: %w", err)
	}
	return docs, nil
}

// Search tokenizes query with the mode the index was built with and returns
// the topK documents.
func (e *Engine) Search(query string, topK int) ([]Result, error) {
	if topK < 1 {
		return nil, apperrors.Invalid("top_k", "top_k must be at least 1, got %d", topK)
	}
	plan, err := parser.Parse(e.registry, query, e.idx.Mode())
	if err != nil {
		return nil, err
	}
	return e.results(ranker.Rank(e.idx, plan.Terms, topK)), nil
}

// SearchTerms ranks pre-tokenized terms, skipping the tokenizer.
func (e *Engine) SearchTerms(terms []string, topK int) ([]Result, error) {
	if topK < 1 {
		return nil, apperrors.Invalid("top_k", "top_k must be at least 1, got %d", topK)
	}
	return e.results(ranker.Rank(e.idx, terms, topK)), nil
}

// Explain reports how each query term contributes to docID's score.
func (e *Engine) Explain(query string, docID int) (ranker.Explanation, error) {
	if docID < 0 || docID >= e.idx.TotalDocs() {
		return ranker.Explanation{}, apperrors.Invalid("doc_id", "doc %d is outside [0, %d)", docID, e.idx.TotalDocs())
	}
	plan, err := parser.Parse(e.registry, query, e.idx.Mode())
	if err != nil {
		return ranker.Explanation{}, err
	}
	return ranker.Explain(e.idx, plan.Terms, docID), nil
}

// Plan tokenizes query the way Search does.
func (e *Engine) Plan(query string) (*parser.QueryPlan, error) {
	return parser.Parse(e.registry, query, e.idx.Mode())
}

func (e *Engine) results(scored []ranker.ScoredDoc) []Result {
	out := make([]Result, len(scored))
	for i, s := range scored {
		out[i] = Result{DocID: s.DocID, Score: s.Score, Text: e.Text(s.DocID)}
	}
	return out
}

// Text returns the original text of docID, or "" when the corpus is not
// attached.
func (e *Engine) Text(docID int) string {
	if docID < 0 || docID >= len(e.corpus) {
		return ""
	}
	return e.corpus[docID]
}

func (e *Engine) Index() *index.Index { return e.idx }

func (e *Engine) Stats() index.Stats { return e.idx.Stats() }

func (e *Engine) Registry() *tokenizer.Registry { return e.registry }

// HasCorpus reports whether results carry document text.
func (e *Engine) HasCorpus() bool { return e.corpus != nil }

// Encode serialises the index with the given codec settings.
func (e *Engine) Encode(format snapshot.Format, compression snapshot.Compression) ([]byte, error) {
	codec, err := snapshot.New(format, compression)
	if err != nil {
		return nil, err
	}
	return codec.Encode(e.idx)
}

// Save writes the index to path. The format follows the file extension,
// falling back to the configured snapshot format.
func (e *Engine) Save(path string) error {
	format := snapshot.FormatForPath(path, snapshot.Format(e.snapCfg.Format))
	data, err := e.Encode(format, snapshot.Compression(e.snapCfg.Compression))
	if err != nil {
		return err
	}
	if err := store.WriteFileAtomic(path, data); err != nil {
		return err
	}
	e.logger.Info("index saved", "path", path, "format", format, "bytes", len(data))
	return nil
}

// SaveTo encodes the index with the configured format and stores it under
// key, retrying transient store failures.
func (e *Engine) SaveTo(ctx context.Context, st store.Store, key string) error {
	data, err := e.Encode(snapshot.Format(e.snapCfg.Format), snapshot.Compression(e.snapCfg.Compression))
	if err != nil {
		return err
	}
	err = resilience.Retry(ctx, "snapshot-store", resilience.RetryConfig{}, func(ctx context.Context) error {
		return st.Put(ctx, key, data)
	})
	if err != nil {
		return fmt.Errorf("storing snapshot %s in %s: %w", key, st.Name(), err)
	}
	e.logger.Info("index stored", "backend", st.Name(), "key", key, "bytes", len(data))
	return nil
}

// Open loads an index saved with Save. corpus may be nil; when given it must
// be the corpus the index was built from.
func Open(path string, corpus []string, cfg *config.Config, opts ...Option) (*Engine, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.Newf(apperrors.ErrSnapshotNotFound, http.StatusNotFound, "no snapshot at %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return Load(data, corpus, cfg, opts...)
}

// OpenFrom loads the snapshot stored under key, retrying transient store
// failures. Corrupt or mismatched snapshots fail immediately.
func OpenFrom(ctx context.Context, st store.Store, key string, corpus []string, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := resolve(cfg, opts)
	retry := resilience.RetryConfig{
		Retryable: func(err error) bool {
			return !apperrors.IsPermanent(err) && !errors.Is(err, apperrors.ErrSnapshotNotFound)
		},
	}
	data, err := resilience.RetryValue(ctx, "snapshot-load", retry, func(ctx context.Context) ([]byte, error) {
		return resilience.CallWithTimeout(ctx, 30*time.Second, "snapshot get", func(ctx context.Context) ([]byte, error) {
			return st.Get(ctx, key)
		})
	})
	if err != nil {
		o.observeLoad(st.Name(), "error")
		return nil, fmt.Errorf("loading snapshot %s from %s: %w", key, st.Name(), err)
	}
	e, err := Load(data, corpus, cfg, WithRegistry(o.registry))
	if err != nil {
		o.observeLoad(st.Name(), "invalid")
		return nil, err
	}
	o.observeLoad(st.Name(), "ok")
	return e, nil
}

func (o options) observeLoad(backend, status string) {
	if o.metrics != nil {
		o.metrics.SnapshotLoadsTotal.WithLabelValues(backend, status).Inc()
	}
}

// Load decodes a snapshot in any supported format.
func Load(data []byte, corpus []string, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := resolve(cfg, opts)
	idx, err := snapshot.Decode(data)
	if err != nil {
		return nil, err
	}
	if _, err := o.registry.Lookup(idx.Mode()); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "indexer")
	if err := CheckCorpus(idx, corpus); err != nil {
		if cfg.Snapshot.StrictCorpus {
			return nil, err
		}
		logger.Warn("corpus does not match index; text is display-only", "error", err)
	}
	logger.Info("index loaded",
		"mode", idx.Mode(),
		"docs", idx.TotalDocs(),
		"terms", idx.VocabularySize(),
		"with_corpus", corpus != nil,
	)
	return &Engine{
		idx:      idx,
		corpus:   corpus,
		registry: o.registry,
		snapCfg:  cfg.Snapshot,
		logger:   logger,
	}, nil
}

// CheckCorpus verifies that corpus is the one idx was built from. A nil
// corpus is accepted. The document count must always match; the text itself
// is compared when the index carries a fingerprint.
func CheckCorpus(idx *index.Index, corpus []string) error {
	if corpus == nil {
		return nil
	}
	if len(corpus) != idx.TotalDocs() {
		return apperrors.Newf(apperrors.ErrCorpusTextMismatch, http.StatusConflict,
			"corpus has %d documents, index was built from %d", len(corpus), idx.TotalDocs())
	}
	if fp := idx.Fingerprint(); fp != "" && snapshot.Fingerprint(corpus) != fp {
		return apperrors.New(apperrors.ErrCorpusTextMismatch, http.StatusConflict,
			"corpus text differs from the text the index was built from")
	}
	return nil
}
