// Package handler serves the search HTTP API: query evaluation over GET
// and POST, index statistics and rebuilds, and the query cache controls.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/tracing"
)

const (
	maxBodyBytes    = 1 << 20
	maxBatchQueries = 100
	defaultTopTerms = 20
)

// SearchEngine is the part of *engine.Engine the handler uses.
type SearchEngine interface {
	EvaluateLimit(ctx context.Context, q parser.Query, limit int) (*executor.SearchResult, error)
	EvaluateAll(ctx context.Context, queries []parser.Query) ([]*executor.SearchResult, error)
	TopTerms(field string, limit int) ([]engine.TermStat, error)
	Document(id uint32) (document.Document, error)
	Generation() uint64
	MaxResults() int
	Stats() engine.Stats
}

// RebuildFunc reloads the document collection and rebuilds the index.
type RebuildFunc func(ctx context.Context) (indexer.BuildStats, error)

// SearchResponse is the search result plus how it was produced.
type SearchResponse struct {
	*executor.SearchResult
	CacheHit   bool    `json:"cache_hit"`
	Generation uint64  `json:"generation"`
	LatencyMs  float64 `json:"latency_ms"`
}

// searchRequest is the POST body. GET requests fill the same fields from
// repeated query parameters. All parts are combined conjunctively.
type searchRequest struct {
	Q           string          `json:"q"`
	Title       []string        `json:"title"`
	NotTitle    []string        `json:"not_title"`
	Abstract    []string        `json:"abstract"`
	NotAbstract []string        `json:"not_abstract"`
	Relevant    []string        `json:"relevant"`
	Clauses     []parser.Clause `json:"clauses"`
	Limit       int             `json:"limit"`
}

func (sr searchRequest) query() (parser.Query, error) {
	var q parser.Query
	if sr.Q != "" {
		parsed, err := parser.Parse(sr.Q)
		if err != nil {
			return parser.Query{}, err
		}
		q = parsed
	}
	lists := parser.FromLists(sr.Title, sr.NotTitle, sr.Abstract, sr.NotAbstract, sr.Relevant)
	q.Clauses = append(q.Clauses, lists.Clauses...)
	q.Clauses = append(q.Clauses, sr.Clauses...)
	return q, nil
}

type Handler struct {
	engine    SearchEngine
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	rebuild   RebuildFunc
	logger    *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) {
		h.cache = c
	}
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) {
		h.collector = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithRebuild(fn RebuildFunc) Option {
	return func(h *Handler) {
		h.rebuild = fn
	}
}

func New(eng SearchEngine, opts ...Option) *Handler {
	h := &Handler{
		engine: eng,
		logger: slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers every endpoint of the handler on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.SearchJSON)
	mux.HandleFunc("POST /api/v1/search/batch", h.SearchBatch)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/index/terms", h.IndexTerms)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search. Parameters title, not_title, abstract,
// not_abstract and relevant may repeat; q takes the query-string syntax.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	req := searchRequest{
		Q:           params.Get("q"),
		Title:       params["title"],
		NotTitle:    params["not_title"],
		Abstract:    params["abstract"],
		NotAbstract: params["not_abstract"],
		Relevant:    params["relevant"],
	}
	if s := params.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		req.Limit = limit
	}
	h.serveSearch(w, r, req)
}

// SearchJSON serves POST /api/v1/search with a JSON searchRequest body.
func (h *Handler) SearchJSON(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.fail(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: %v", err))
		return
	}
	if req.Limit < 0 {
		h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must not be negative"))
		return
	}
	h.serveSearch(w, r, req)
}

// SearchBatch serves POST /api/v1/search/batch. Every query of the batch is
// evaluated against the same index generation; results keep input order.
// Batches bypass the cache.
func (h *Handler) SearchBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var body struct {
		Queries []searchRequest `json:"queries"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.fail(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: %v", err))
		return
	}
	if len(body.Queries) == 0 || len(body.Queries) > maxBatchQueries {
		h.fail(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"a batch holds 1 to %d queries, got %d", maxBatchQueries, len(body.Queries)))
		return
	}
	queries := make([]parser.Query, len(body.Queries))
	for i, req := range body.Queries {
		if req.Limit < 0 {
			h.fail(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query %d: limit must not be negative", i))
			return
		}
		q, err := req.query()
		if err == nil {
			err = q.Validate()
		}
		if err != nil {
			h.observe("invalid", "none", 0, start)
			h.fail(w, r, fmt.Errorf("query %d: %w", i, err))
			return
		}
		queries[i] = q
	}

	generation := h.engine.Generation()
	var results []*executor.SearchResult
	err := tracing.Trace(r.Context(), "evaluate batch", func(ctx context.Context) error {
		var err error
		results, err = h.engine.EvaluateAll(ctx, queries)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for i, res := range results {
		if limit := body.Queries[i].Limit; limit > 0 && len(res.Results) > limit {
			res.Results = res.Results[:limit]
		}
		resultType := "hit"
		if len(res.Results) == 0 {
			resultType = "zero_result"
		}
		h.observe(resultType, "none", len(res.Results), start)
	}
	logger.FromContext(r.Context()).Info("batch search completed",
		"queries", len(queries),
		"generation", generation,
		"latency", time.Since(start),
	)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation": generation,
		"results":    results,
	})
}

func (h *Handler) serveSearch(w http.ResponseWriter, r *http.Request, req searchRequest) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q, err := req.query()
	if err != nil {
		h.observe("invalid", "none", 0, start)
		h.trackInvalid(ctx, req.Q)
		h.fail(w, r, err)
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > h.engine.MaxResults() {
		limit = h.engine.MaxResults()
	}
	generation := h.engine.Generation()

	var result *executor.SearchResult
	cacheHit := false
	cacheStatus := "none"
	err = tracing.Trace(ctx, "evaluate", func(ctx context.Context) error {
		compute := func(ctx context.Context) (*executor.SearchResult, error) {
			return h.engine.EvaluateLimit(ctx, q, limit)
		}
		var err error
		if h.cache != nil && generation > 0 {
			result, cacheHit, err = h.cache.GetOrCompute(ctx, q, limit, generation, compute)
			cacheStatus = "miss"
			if cacheHit {
				cacheStatus = "hit"
			}
			return err
		}
		result, err = compute(ctx)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidQuery):
			h.observe("invalid", cacheStatus, 0, start)
			h.trackInvalid(ctx, q.Canonical())
		case errors.Is(err, apperrors.ErrIndexNotBuilt):
			h.observe("not_ready", cacheStatus, 0, start)
		default:
			h.observe("error", cacheStatus, 0, start)
		}
		h.fail(w, r, err)
		return
	}

	latency := time.Since(start)
	resultType := "hit"
	if len(result.Results) == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheStatus, len(result.Results), start)
	log.Info("search completed",
		"query", q.Canonical(),
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"generation", generation,
		"latency", latency,
	)
	if h.collector != nil {
		h.collector.Track(analytics.SearchEvent{
			Type:       analytics.EventSearch,
			Query:      q.Canonical(),
			Terms:      termKeys(result.TermStats),
			TotalHits:  result.TotalHits,
			Returned:   len(result.Results),
			LatencyMs:  float64(latency.Microseconds()) / 1000,
			CacheHit:   cacheHit,
			Generation: generation,
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, SearchResponse{
		SearchResult: result,
		CacheHit:     cacheHit,
		Generation:   generation,
		LatencyMs:    float64(latency.Microseconds()) / 1000,
	})
}

// IndexStats serves GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

// IndexTerms serves GET /api/v1/index/terms, the terms held by the most
// documents. field narrows the listing to one field.
func (h *Handler) IndexTerms(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopTerms
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	terms, err := h.engine.TopTerms(r.URL.Query().Get("field"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation": h.engine.Generation(),
		"terms":      terms,
	})
}

// GetDocument serves GET /api/v1/documents/{id}. Ids are those reported in
// search results and are only stable within one index generation.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document id must be a non-negative integer"))
		return
	}
	doc, err := h.engine.Document(uint32(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// Rebuild serves POST /api/v1/index/rebuild.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.rebuild == nil {
		h.writeError(w, http.StatusNotImplemented, "rebuild is not configured")
		return
	}
	stats, err := h.rebuild(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation": h.engine.Generation(),
		"build":      stats,
	})
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
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) observe(resultType, cacheStatus string, returned int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if resultType == "hit" || resultType == "zero_result" {
		h.metrics.SearchResultsCount.Observe(float64(returned))
	}
}

func (h *Handler) trackInvalid(ctx context.Context, query string) {
	if h.collector == nil {
		return
	}
	h.collector.Track(analytics.SearchEvent{
		Type:      analytics.EventInvalidQuery,
		Query:     query,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})
}

// fail maps err to a status code. Client errors carry their message;
// server errors are logged and answered generically.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
		message := "search failed"
		if status == http.StatusServiceUnavailable {
			message = err.Error()
		}
		h.writeError(w, status, message)
		return
	}
	log.Info("request rejected", "path", r.URL.Path, "status", status, "error", err)
	h.writeError(w, status, err.Error())
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

func termKeys(stats map[string]int) []string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
