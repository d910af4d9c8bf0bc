package handler

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/middleware"
)

// RouterDeps are the optional collaborators mounted next to the search API.
type RouterDeps struct {
	Analytics *analytics.Handler
	Health    *health.Checker
	Metrics   *metrics.Metrics
	Limiter   *middleware.RateLimiter
}

// NewRouter builds the API handler.
//
// Route table:
//
//	POST   /api/v1/documents
//	POST   /api/v1/documents/batch
//	GET    /api/v1/documents/{id}
//	DELETE /api/v1/documents/{id}
//	GET    /api/v1/search?q=&field=&limit=
//	GET    /api/v1/search/{field}/{text}
//	POST   /api/v1/search
//	GET    /api/v1/index/stats
//	POST   /api/v1/index/compact
//	GET    /api/v1/sessions
//	DELETE /api/v1/sessions/{session}
//	GET    /api/v1/cache/stats
//	POST   /api/v1/cache/invalidate
//	GET    /api/v1/analytics
//	GET    /api/v1/analytics/history
//	GET    /health/live
//	GET    /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → MaxBody → Timeout → Metrics → mux
//
// Metrics sits next to the mux so it sees the matched route pattern.
func NewRouter(h *Handler, cfg config.ServerConfig, deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/documents", h.IndexDocument)
	mux.HandleFunc("POST /api/v1/documents/batch", h.IndexBatch)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DeleteDocument)

	mux.HandleFunc("GET /api/v1/search", h.SearchQuery)
	mux.HandleFunc("GET /api/v1/search/{field}/{text}", h.SearchPath)
	mux.HandleFunc("POST /api/v1/search", h.SearchTyped)

	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/compact", h.Compact)
	mux.HandleFunc("GET /api/v1/sessions", h.ListSessions)
	mux.HandleFunc("DELETE /api/v1/sessions/{session}", h.DropSession)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	if deps.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", deps.Analytics.Stats)
		mux.HandleFunc("GET /api/v1/analytics/history", deps.Analytics.History)
	}
	checker := deps.Health
	if checker == nil {
		checker = health.NewChecker()
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Metrics(deps.Metrics)(mux)
	if cfg.RequestTimeout > 0 {
		chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	}
	chain = middleware.MaxBody(cfg.MaxBodyBytes)(chain)
	chain = middleware.RateLimit(deps.Limiter, middleware.SessionKey)(chain)
	chain = middleware.CORS(cfg.CORSOrigins)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
