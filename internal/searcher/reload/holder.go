// Package reload keeps the live search index and swaps it when a new
// snapshot appears. Queries read the current engine through Holder and are
// never blocked by a reload.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/metrics"
)

// Holder publishes the current engine. The zero value holds nothing.
type Holder struct {
	ptr atomic.Pointer[indexer.Engine]
}

func (h *Holder) Current() *indexer.Engine {
	return h.ptr.Load()
}

// Swap installs e and returns the engine it replaced.
func (h *Holder) Swap(e *indexer.Engine) *indexer.Engine {
	return h.ptr.Swap(e)
}

// Loader produces a fresh engine, typically by reading the configured
// snapshot store.
type Loader func(ctx context.Context) (*indexer.Engine, error)

// Reloader runs a Loader and installs the result. Reloads are serialised;
// a failed load leaves the current engine in place.
type Reloader struct {
	holder   *Holder
	load     Loader
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mu       sync.Mutex
	onSwap   []func(*indexer.Engine)
	lastLoad atomic.Int64
}

func NewReloader(holder *Holder, load Loader, m *metrics.Metrics) *Reloader {
	return &Reloader{
		holder:  holder,
		load:    load,
		metrics: m,
		logger:  slog.Default().With("component", "index-reloader"),
	}
}

// OnSwap registers fn to run after each successful swap, e.g. to drop query
// results cached against the old index.
func (r *Reloader) OnSwap(fn func(*indexer.Engine)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSwap = append(r.onSwap, fn)
}

// Reload loads a new engine and swaps it in. trigger labels the cause in
// logs and metrics.
func (r *Reloader) Reload(ctx context.Context, trigger string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	e, err := r.load(ctx)
	if err != nil {
		r.observe(trigger, "error")
		r.logger.Error("index reload failed", "trigger", trigger, "error", err)
		return fmt.Errorf("reloading index (%s): %w", trigger, err)
	}
	r.holder.Swap(e)
	r.lastLoad.Store(time.Now().UnixNano())
	r.observe(trigger, "ok")

	stats := e.Stats()
	if r.metrics != nil {
		r.metrics.IndexDocuments.Set(float64(stats.TotalDocs))
		r.metrics.IndexVocabulary.Set(float64(stats.VocabularySize))
	}
	for _, fn := range r.onSwap {
		fn(e)
	}
	r.logger.Info("index swapped",
		"trigger", trigger,
		"docs", stats.TotalDocs,
		"terms", stats.VocabularySize,
		"duration", time.Since(start),
	)
	return nil
}

// LastReload reports when the last successful swap happened.
func (r *Reloader) LastReload() time.Time {
	ns := r.lastLoad.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (r *Reloader) observe(trigger, status string) {
	if r.metrics != nil {
		r.metrics.IndexReloadsTotal.WithLabelValues(trigger, status).Inc()
	}
}
