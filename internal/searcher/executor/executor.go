package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/tracing"
)

// Hit is one ranked document in a SearchResult.
type Hit struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

type SearchResult struct {
	Query     string         `json:"query"`
	Mode      string         `json:"mode"`
	Terms     []string       `json:"terms"`
	TotalHits int            `json:"total_hits"`
	Results   []Hit          `json:"results"`
	TermStats map[string]int `json:"term_stats"`
}

// Source hands out the engine queries should run against. The reload
// holder implements it so a swap never disturbs an in-flight query.
type Source interface {
	Current() *indexer.Engine
}

type Executor struct {
	source Source
	logger *slog.Logger
}

func New(source Source) *Executor {
	return &Executor{
		source: source,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Engine returns the current engine or ErrIndexUnavailable.
func (e *Executor) Engine() (*indexer.Engine, error) {
	eng := e.source.Current()
	if eng == nil {
		return nil, apperrors.New(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable, "no index is loaded")
	}
	return eng, nil
}

// Plan tokenizes query with the mode of the current index.
func (e *Executor) Plan(query string) (*indexer.Engine, *parser.QueryPlan, error) {
	eng, err := e.Engine()
	if err != nil {
		return nil, nil, err
	}
	plan, err := eng.Plan(query)
	if err != nil {
		return nil, nil, err
	}
	return eng, plan, nil
}

// Execute ranks plan against eng. Pass the engine returned by Plan so the
// query is tokenized and scored against the same index.
func (e *Executor) Execute(ctx context.Context, eng *indexer.Engine, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if limit < 1 {
		return nil, apperrors.Invalid("limit", "limit must be at least 1, got %d", limit)
	}
	result := &SearchResult{
		Query:     plan.RawQuery,
		Mode:      string(plan.Mode),
		Terms:     plan.Terms,
		Results:   []Hit{},
		TermStats: map[string]int{},
	}
	if plan.Empty() {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	_, span := tracing.StartChildSpan(ctx, "rank")
	defer span.End()

	idx := eng.Index()
	terms := ranker.Distinct(plan.Terms)
	for _, term := range terms {
		if df := idx.DocFreq(term); df > 0 {
			result.TermStats[term] = df
		}
	}
	result.TotalHits = int(idx.Matching(terms).GetCardinality())

	for _, doc := range ranker.Rank(idx, terms, limit) {
		result.Results = append(result.Results, Hit{
			DocID: doc.DocID,
			Score: doc.Score,
			Text:  eng.Text(doc.DocID),
		})
	}
	span.SetAttr("candidates", result.TotalHits)
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

// Search plans and executes query in one step.
func (e *Executor) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	eng, plan, err := e.Plan(query)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, eng, plan, limit)
}
