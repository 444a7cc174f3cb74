package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/tracing"
)

type SearchExecutor interface {
	Engine() (*indexer.Engine, error)
	Plan(query string) (*indexer.Engine, *parser.QueryPlan, error)
	Execute(ctx context.Context, eng *indexer.Engine, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

// Reloader swaps in a freshly loaded index on demand.
type Reloader interface {
	Reload(ctx context.Context, trigger string) error
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	reloader     Reloader
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds a Handler. queryCache, reloader and m may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, reloader Reloader, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		reloader:     reloader,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	ctx, span := tracing.StartSpan(ctx, "search", middleware.GetRequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	_, planSpan := tracing.StartChildSpan(ctx, "plan")
	eng, plan, err := h.executor.Plan(query)
	planSpan.End()
	if err != nil {
		h.observe("error", "none", nil, start)
		h.writeAppError(w, err)
		return
	}
	planSpan.SetAttr("terms", len(plan.Terms))

	var result *executor.SearchResult
	cacheStatus := "disabled"
	if h.cache != nil && !plan.Empty() {
		cacheCtx, cacheSpan := tracing.StartChildSpan(ctx, "cache")
		var hit bool
		result, hit, err = h.cache.GetOrCompute(cacheCtx, cache.Scope(eng.Stats()), plan, limit, func() (*executor.SearchResult, error) {
			return h.executor.Execute(cacheCtx, eng, plan, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
		cacheSpan.SetAttr("status", cacheStatus)
		cacheSpan.End()
	} else {
		result, err = h.executor.Execute(ctx, eng, plan, limit)
	}
	span.SetAttr("cache", cacheStatus)
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.observe("error", cacheStatus, nil, start)
		h.writeAppError(w, err)
		return
	}
	h.observe("hit", cacheStatus, result, start)

	log.Info("search completed",
		"query", query,
		"terms", plan.Terms,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", time.Since(start).Milliseconds(),
		"request_id", middleware.GetRequestID(ctx),
	)
	w.Header().Set("X-Cache", cacheStatus)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observe(resultType, cacheStatus string, result *executor.SearchResult, start time.Time) {
	if h.metrics == nil {
		return
	}
	if result != nil {
		if len(result.Results) == 0 {
			resultType = "zero_result"
		}
		h.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
}

// Explain breaks one document's score for q down by term.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	docID, err := strconv.Atoi(r.URL.Query().Get("doc"))
	if err != nil || docID < 0 {
		h.writeError(w, http.StatusBadRequest, "doc must be a non-negative integer")
		return
	}
	eng, err := h.executor.Engine()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	ex, err := eng.Explain(query, docID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ex)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	eng, err := h.executor.Engine()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":      eng.Stats(),
		"has_corpus": eng.HasCorpus(),
	})
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reloading is not configured")
		return
	}
	if err := h.reloader.Reload(r.Context(), "manual"); err != nil {
		h.writeAppError(w, err)
		return
	}
	eng, err := h.executor.Engine()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "index": eng.Stats()})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := map[string]string{"error": err.Error()}
	if field := apperrors.FieldOf(err); field != "" {
		body["field"] = field
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	h.writeJSON(w, status, body)
}
