package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/kafka"
)

const (
	latencyWindow = 10000
	topN          = 10
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	InvalidQueries    int64        `json:"invalid_queries"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	TopTerms          []QueryCount `json:"top_terms"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	IndexBuilds       int64        `json:"index_builds"`
	LastBuild         *BuildEvent  `json:"last_build,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and build events into running statistics. It
// keeps the latencies of the most recent searches only.
type Aggregator struct {
	mu                sync.Mutex
	searches          int64
	invalid           int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []float64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	termCounts        map[string]int64
	builds            int64
	lastBuild         *BuildEvent
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, latencyWindow),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		termCounts:        make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleMessage is the kafka.MessageHandler for the analytics topic.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	event, err := Decode(value)
	if err != nil {
		return err
	}
	a.Record(event)
	return nil
}

// PublishBatch records events directly, standing in for Kafka when it is
// disabled.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		if event, ok := e.Value.(Event); ok {
			a.Record(event)
		}
	}
	return nil
}

func (a *Aggregator) Record(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case BuildEvent:
		a.builds++
		a.lastBuild = &e
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", e)
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	if e.Type == EventInvalidQuery {
		a.invalid++
		return
	}
	a.searches++
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	query := strings.TrimSpace(e.Query)
	a.queryCounts[query]++
	if e.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[query]++
	}
	for _, term := range e.Terms {
		a.termCounts[term]++
	}
}

// Stats reports the running statistics with the default top-N lists.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(topN)
}

// StatsTop is Stats with the top query, zero-result and term lists cut to n
// entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:     a.searches,
		InvalidQueries:    a.invalid,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		ZeroResultCount:   a.zeroResults,
		TopQueries:        top(a.queryCounts, n),
		ZeroResultQueries: top(a.zeroResultQueries, n),
		TopTerms:          top(a.termCounts, n),
		IndexBuilds:       a.builds,
	}
	if a.lastBuild != nil {
		last := *a.lastBuild
		stats.LastBuild = &last
	}
	if len(a.latencies) > 0 {
		sorted := append([]float64(nil), a.latencies...)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.searches) / elapsed
	}
	return stats
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []float64, pct int) float64 {
	idx := (pct*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// top returns the n largest counts, ties broken alphabetically.
func top(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
