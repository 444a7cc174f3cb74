// Command loadtest drives concurrent queries against the search service and
// reports throughput, latency percentiles, cache effectiveness and status
// codes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
)

var defaultQueries = []string{
	"machine learning",
	"deep learning techniques",
	"artificial intelligence",
	"sample document",
	"search ranking",
	"inverted index",
	"BM25 ranking",
	"token stemming",
	"机器学习",
	"人工智能 样本",
	"深度 技术",
	"BM25 机器学习 ranking",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	zeroResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

// RecordRequest accounts one finished request. cacheHit and zeroHits only
// count for successful responses.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, cacheHit, zeroHits bool, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
		if cacheHit {
			s.cacheHits.Add(1)
		}
		if zeroHits {
			s.zeroResults.Add(1)
		}
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

// Report is the summary printed at the end of a run.
type Report struct {
	Total       int64            `json:"total_requests"`
	Success     int64            `json:"successful"`
	Errors      int64            `json:"errors"`
	CacheHits   int64            `json:"cache_hits"`
	ZeroResults int64            `json:"zero_results"`
	RPS         float64          `json:"requests_per_sec"`
	Latency     map[string]int64 `json:"latency_us,omitempty"`
	StatusCodes map[string]int64 `json:"status_codes"`
}

func (s *Stats) Report(elapsed time.Duration) Report {
	r := Report{
		Total:       s.totalRequests.Load(),
		Success:     s.successCount.Load(),
		Errors:      s.errorCount.Load(),
		CacheHits:   s.cacheHits.Load(),
		ZeroResults: s.zeroResults.Load(),
		StatusCodes: make(map[string]int64),
	}
	if elapsed > 0 {
		r.RPS = float64(r.Total) / elapsed.Seconds()
	}

	s.latenciesMu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	s.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}
		r.Latency = map[string]int64{
			"min":    latencies[0].Microseconds(),
			"avg":    avg.Microseconds(),
			"p50":    percentile(latencies, 50).Microseconds(),
			"p90":    percentile(latencies, 90).Microseconds(),
			"p95":    percentile(latencies, 95).Microseconds(),
			"p99":    percentile(latencies, 99).Microseconds(),
			"max":    latencies[len(latencies)-1].Microseconds(),
			"stddev": time.Duration(math.Sqrt(sumSquared / float64(len(latencies)))).Microseconds(),
		}
	}

	s.statusCodesMu.Lock()
	for code, n := range s.statusCodes {
		r.StatusCodes[strconv.Itoa(code)] = n.Load()
	}
	s.statusCodesMu.Unlock()
	return r
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	baseURL := fs.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := fs.IntP("concurrency", "c", 10, "number of concurrent workers")
	duration := fs.DurationP("duration", "d", 30*time.Second, "test duration")
	limit := fs.IntP("limit", "k", 10, "results requested per query")
	queryFile := fs.String("queries", "", "file of queries, one per line (any corpus format)")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *concurrency < 1 || *limit < 1 || *duration <= 0 {
		return errors.New("concurrency, limit and duration must be positive")
	}

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := indexer.ReadCorpus(*queryFile)
		if err != nil {
			return err
		}
		queries = loaded[:0]
		for _, q := range loaded {
			if q = strings.TrimSpace(q); q != "" {
				queries = append(queries, q)
			}
		}
		if len(queries) == 0 {
			return fmt.Errorf("%s contains no queries", *queryFile)
		}
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		Queries:     queries,
	}

	if !*asJSON {
		fmt.Fprintln(out, "=== BM25 Search Load Test ===")
		fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
		fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
		fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
		fmt.Fprintf(out, "Queries:     %d unique\n", len(cfg.Queries))
		fmt.Fprintln(out)
	}

	start := time.Now()
	stats := runLoadTest(ctx, cfg)
	report := stats.Report(time.Since(start))

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if report.Total == 0 {
		return errors.New("no requests completed; is the service running?")
	}
	return nil
}

// searchBody is the part of the search response the load test inspects.
type searchBody struct {
	TotalHits int `json:"total_hits"`
}

func runLoadTest(ctx context.Context, cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID

			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d",
					cfg.BaseURL, url.QueryEscape(query), cfg.Limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
				if err != nil {
					stats.RecordRequest(0, 0, false, false, err)
					return
				}

				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						// Cut off by the deadline, not a service failure.
						return
					}
					stats.RecordRequest(time.Since(start), 0, false, false, err)
					continue
				}
				var body searchBody
				decodeErr := json.NewDecoder(resp.Body).Decode(&body)
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				duration := time.Since(start)

				ok := resp.StatusCode == http.StatusOK && decodeErr == nil
				stats.RecordRequest(duration, resp.StatusCode,
					resp.Header.Get("X-Cache") == "hit", ok && body.TotalHits == 0, nil)
			}
		}(w)
	}

	wg.Wait()
	return stats
}

func printReport(out io.Writer, r Report) {
	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", r.Total)
	fmt.Fprintf(out, "Successful:      %d\n", r.Success)
	fmt.Fprintf(out, "Errors:          %d\n", r.Errors)
	if r.Total > 0 {
		fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(r.Errors)/float64(r.Total)*100)
		fmt.Fprintf(out, "Requests/sec:    %.2f\n", r.RPS)
	}
	if r.Success > 0 {
		fmt.Fprintf(out, "Cache Hit Rate:  %.2f%%\n", float64(r.CacheHits)/float64(r.Success)*100)
		fmt.Fprintf(out, "Zero Results:    %d\n", r.ZeroResults)
	}

	if len(r.Latency) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		for _, name := range []string{"min", "avg", "p50", "p90", "p95", "p99", "max", "stddev"} {
			fmt.Fprintf(out, "%-7s %s\n", strings.ToUpper(name[:1])+name[1:]+":",
				time.Duration(r.Latency[name])*time.Microsecond)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	codes := make([]string, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "  %s: %d\n", code, r.StatusCodes[code])
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
