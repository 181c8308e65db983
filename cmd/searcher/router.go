package main

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/tracing"
)

type routes struct {
	search    *handler.Handler
	analytics *analytics.Handler
	health    *health.Checker
	metrics   *metrics.Metrics
	limiter   *ratelimit.Limiter
}

// newRouter mounts every endpoint and wraps them in the middleware chain,
// outermost first: request id, tracing, metrics, CORS, rate limit, timeout.
func newRouter(cfg *config.Config, r routes) http.Handler {
	mux := http.NewServeMux()
	r.search.Routes(mux)
	r.analytics.Routes(mux)
	mux.HandleFunc("GET /health/live", r.health.LiveHandler())
	mux.HandleFunc("GET /health/ready", r.health.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(r.limiter)(chain)
	chain = middleware.CORS(cfg.Server.CORSOrigins, 600)(chain)
	chain = middleware.Metrics(r.metrics)(chain)
	chain = tracing.Middleware(cfg.Tracing.Enabled)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
