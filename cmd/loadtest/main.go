package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"content based video annotation",
	"video -title:audio",
	"abstract:retrieval relevance:1",
	"title:video",
	"content -abstract:image",
	"NOT title:survey annotation",
	"image retrieval",
	"relevance:0 video",
	"taskNumber:3 content",
	"semantic indexing",
}

type config struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	limit       int
	queries     []string
}

// recorder is shared by the workers. Latencies are appended under mu; the
// counters are atomic.
type recorder struct {
	requests    atomic.Int64
	failures    atomic.Int64
	cacheHits   atomic.Int64
	zeroResults atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int64
}

func newRecorder() *recorder {
	return &recorder{statuses: make(map[int]int64)}
}

func (r *recorder) record(latency time.Duration, status int) {
	r.requests.Add(1)
	if status < 200 || status >= 300 {
		r.failures.Add(1)
	}
	r.mu.Lock()
	r.latencies = append(r.latencies, latency)
	r.statuses[status]++
	r.mu.Unlock()
}

type searchResponse struct {
	TotalHits int  `json:"total_hits"`
	CacheHit  bool `json:"cache_hit"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "results per query")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in set)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}
	cfg := config{
		baseURL:     strings.TrimRight(*baseURL, "/"),
		concurrency: *concurrency,
		duration:    *duration,
		limit:       *limit,
		queries:     queries,
	}

	fmt.Println("=== Feed Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.baseURL)
	fmt.Printf("Concurrency: %d\n", cfg.concurrency)
	fmt.Printf("Duration:    %s\n", cfg.duration)
	fmt.Printf("Queries:     %d unique\n\n", len(cfg.queries))

	rec := run(cfg)
	if !report(rec, cfg.duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s holds no queries", path)
	}
	return out, nil
}

func run(cfg config) *recorder {
	rec := newRecorder()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	var g errgroup.Group
	for w := range cfg.concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				query := cfg.queries[i%len(cfg.queries)]
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.baseURL, url.QueryEscape(query), cfg.limit)
				search(ctx, client, target, rec)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rec
}

func search(ctx context.Context, client *http.Client, target string, rec *recorder) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		rec.record(0, 0)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			rec.record(latency, 0)
		}
		return
	}
	defer resp.Body.Close()
	rec.record(latency, resp.StatusCode)

	var body searchResponse
	if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&body) == nil {
		if body.CacheHit {
			rec.cacheHits.Add(1)
		}
		if body.TotalHits == 0 {
			rec.zeroResults.Add(1)
		}
	}
}

// report prints the summary and reports whether any request completed.
func report(rec *recorder, duration time.Duration) bool {
	total := rec.requests.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Requests:      %d\n", total)
	fmt.Printf("Failures:      %d\n", rec.failures.Load())
	fmt.Printf("Cache hits:    %d\n", rec.cacheHits.Load())
	fmt.Printf("Zero results:  %d\n", rec.zeroResults.Load())
	if total == 0 {
		fmt.Println("\nWARNING: no requests completed. Is the service running?")
		return false
	}
	fmt.Printf("Requests/sec:  %.2f\n", float64(total)/duration.Seconds())

	rec.mu.Lock()
	latencies := slices.Clone(rec.latencies)
	statuses := make([]int, 0, len(rec.statuses))
	for code := range rec.statuses {
		statuses = append(statuses, code)
	}
	rec.mu.Unlock()
	slices.Sort(latencies)
	slices.Sort(statuses)

	fmt.Println("\n=== Latency ===")
	for _, p := range []float64{50, 90, 95, 99} {
		fmt.Printf("P%-3.0f %s\n", p, percentile(latencies, p))
	}
	fmt.Printf("Max  %s\n", latencies[len(latencies)-1])

	fmt.Println("\n=== Status Codes ===")
	for _, code := range statuses {
		fmt.Printf("  %d: %d\n", code, rec.statuses[code])
	}
	return true
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
