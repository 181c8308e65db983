package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value)
	return nil
}

func (m *mapStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sampleDocs() []document.Document {
	return []document.Document{
		{Title: "Video annotation", Abstract: "content based video annotation", TaskNumber: 3, Relevant: true},
		{Title: "Unrelated", Abstract: "unrelated text", TaskNumber: 3},
		{Title: "Video retrieval", Abstract: "content based video retrieval of video clips", TaskNumber: 3},
	}
}

func builtEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(config.SearchConfig{MaxResults: config.DefaultMaxResults}, nil)
	_, err := e.Build(context.Background(), sampleDocs())
	require.NoError(t, err)
	return e
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Routes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

type searchBody struct {
	Query     string `json:"query"`
	TotalHits int    `json:"total_hits"`
	Results   []struct {
		DocID uint32  `json:"doc_id"`
		Score float64 `json:"score"`
	} `json:"results"`
	CacheHit   bool   `json:"cache_hit"`
	Generation uint64 `json:"generation"`
}

func decodeSearch(t *testing.T, rec *httptest.ResponseRecorder) searchBody {
	t.Helper()
	var body searchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// queryCount reads search_queries_total for one result_type.
func queryCount(t *testing.T, reg *prometheus.Registry, resultType string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "search_queries_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result_type" && l.GetValue() == resultType {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSearchGETLists(t *testing.T) {
	h := New(builtEngine(t))
	params := url.Values{"abstract": {"content", "video"}, "not_title": {"annotation"}}
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?"+params.Encode(), nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeSearch(t, rec)
	require.Len(t, body.Results, 1)
	assert.Equal(t, uint32(2), body.Results[0].DocID)
	assert.Equal(t, uint64(1), body.Generation)
	assert.False(t, body.CacheHit)
}

func TestSearchGETQueryString(t *testing.T) {
	h := New(builtEngine(t))
	q := url.Values{"q": {"video -title:annotation"}}
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?"+q.Encode(), nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeSearch(t, rec)
	require.Len(t, body.Results, 1)
	assert.Equal(t, uint32(2), body.Results[0].DocID)
}

func TestSearchGETLimit(t *testing.T) {
	h := New(builtEngine(t))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeSearch(t, rec)
	assert.Equal(t, 3, body.TotalHits)
	assert.Len(t, body.Results, 2)

	for _, bad := range []string{"0", "-1", "ten"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestSearchPOST(t *testing.T) {
	h := New(builtEngine(t))
	payload := `{"clauses":[{"field":"abstract","occur":"must","text":"video"}],"relevant":["1"]}`
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeSearch(t, rec)
	require.Len(t, body.Results, 1)
	assert.Equal(t, uint32(0), body.Results[0].DocID)
}

func TestSearchPOSTRejectsBadBody(t *testing.T) {
	h := New(builtEngine(t))
	tests := map[string]string{
		"not json":       "{",
		"unknown field":  `{"author":["x"]}`,
		"negative limit": `{"limit":-3}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(payload)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestSearchInvalidQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := New(builtEngine(t), WithMetrics(m))

	for _, q := range []string{"relevant=2", "q=" + url.QueryEscape("author:smith"), "q=a+OR+b"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Contains(t, rec.Body.String(), "invalid query", q)
	}
	assert.Equal(t, 3.0, queryCount(t, reg, "invalid"))
}

func TestSearchBeforeBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := engine.New(config.SearchConfig{MaxResults: 5}, nil)
	h := New(e, WithMetrics(m))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?title=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "index not built")
	assert.Equal(t, 1.0, queryCount(t, reg, "not_ready"))
}

func TestSearchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := New(builtEngine(t), WithMetrics(m))

	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?abstract=video", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?abstract=nonexistent", nil))

	assert.Equal(t, 1.0, queryCount(t, reg, "hit"))
	assert.Equal(t, 1.0, queryCount(t, reg, "zero_result"))
}

func TestSearchUsesCache(t *testing.T) {
	store := &mapStore{data: make(map[string]string)}
	c := cache.New(store, time.Minute)
	h := New(builtEngine(t), WithCache(c))

	first := decodeSearch(t, serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?abstract=video", nil)))
	second := decodeSearch(t, serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?abstract=video", nil)))

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1.0, stats["hits"])
	assert.Equal(t, 1.0, stats["misses"])
	assert.Equal(t, "closed", stats["breaker"])

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keys_deleted":1`)
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	h := New(builtEngine(t))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchTracksAnalytics(t *testing.T) {
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(agg, analytics.CollectorConfig{BatchSize: 1, FlushInterval: time.Hour})
	collector.Start(context.Background())
	h := New(builtEngine(t), WithCollector(collector))

	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?abstract=video", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?relevant=7", nil))
	collector.Close()

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.InvalidQueries)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, "+abstract:video", stats.TopQueries[0].Query)
}

func TestIndexStats(t *testing.T) {
	h := New(builtEngine(t))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/index/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats engine.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.True(t, stats.Ready)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, 3, stats.Documents)
}

func TestIndexTerms(t *testing.T) {
	h := New(builtEngine(t))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/index/terms?field=relevance", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Generation uint64            `json:"generation"`
		Terms      []engine.TermStat `json:"terms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(1), body.Generation)
	assert.Equal(t, []engine.TermStat{{Term: "relevance:0", DocFreq: 2}, {Term: "relevance:1", DocFreq: 1}}, body.Terms)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/index/terms?field=author", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/index/terms?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocument(t *testing.T) {
	h := New(builtEngine(t))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/documents/1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var doc document.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, uint32(1), doc.ID)
	assert.Equal(t, "Unrelated", doc.Title)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/documents/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/documents/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(New(engine.New(config.SearchConfig{}, nil)), httptest.NewRequest(http.MethodGet, "/api/v1/documents/0", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchBatch(t *testing.T) {
	h := New(builtEngine(t))
	payload := `{"queries":[
		{"abstract":["video"]},
		{"abstract":["video"],"not_abstract":["clips"]},
		{"abstract":["video"],"limit":1}
	]}`
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/search/batch", strings.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Generation uint64       `json:"generation"`
		Results    []searchBody `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(1), body.Generation)
	require.Len(t, body.Results, 3)
	assert.Len(t, body.Results[0].Results, 2)
	require.Len(t, body.Results[1].Results, 1)
	assert.Equal(t, uint32(0), body.Results[1].Results[0].DocID)
	assert.Len(t, body.Results[2].Results, 1)
	assert.Equal(t, 2, body.Results[2].TotalHits)
}

func TestSearchBatchRejects(t *testing.T) {
	h := New(builtEngine(t))
	tests := []struct {
		name    string
		payload string
	}{
		{"empty batch", `{"queries":[]}`},
		{"unknown field", `{"queries":[{"clauses":[{"field":"author","occur":"must","text":"x"}]}]}`},
		{"negative limit", `{"queries":[{"abstract":["video"],"limit":-1}]}`},
		{"bad body", `{"queries":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/search/batch", strings.NewReader(tt.payload)))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestRebuild(t *testing.T) {
	e := builtEngine(t)
	rebuild := func(ctx context.Context) (indexer.BuildStats, error) {
		return e.Build(ctx, sampleDocs()[:1])
	}
	h := New(e, WithRebuild(rebuild))

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"generation":2`)
	assert.Equal(t, uint64(2), e.Generation())
}

func TestRebuildFailureAndUnconfigured(t *testing.T) {
	e := builtEngine(t)
	rec := serve(New(e), httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	failing := func(context.Context) (indexer.BuildStats, error) {
		return indexer.BuildStats{}, errors.New("source unreachable")
	}
	rec = serve(New(e, WithRebuild(failing)), httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unreachable", "internal errors are not echoed")
	assert.Equal(t, uint64(1), e.Generation())
}
