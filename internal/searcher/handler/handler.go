// Package handler exposes session-scoped indexing and search over HTTP.
// The target session is chosen by the X-Session-ID header.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/middleware"
)

// SearchRequest is the body of POST /api/v1/search. An empty Type parses
// Query as free text.
type SearchRequest struct {
	Field string `json:"field"`
	Type  string `json:"type"`
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type documentResponse struct {
	ID     index.DocID    `json:"id"`
	Fields index.Document `json:"fields"`
}

type Handler struct {
	registry *searcher.Registry
	cache    *cache.QueryCache
	logger   *slog.Logger
}

// New serves the sessions held by registry. queryCache may be nil.
func New(registry *searcher.Registry, queryCache *cache.QueryCache) *Handler {
	return &Handler{
		registry: registry,
		cache:    queryCache,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) service(w http.ResponseWriter, r *http.Request) (*searcher.Service, bool) {
	svc, err := h.registry.Get(r.Header.Get(middleware.SessionHeader))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return svc, true
}

func (h *Handler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	var doc index.Document
	if err := decode(r, &doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := svc.AddDocument(r.Context(), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ingestion.IngestResponse{DocumentID: id, Status: "indexed"})
}

func (h *Handler) IndexBatch(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	var docs []index.Document
	if err := decode(r, &docs); err != nil {
		h.writeError(w, r, err)
		return
	}
	ids, err := svc.AddDocuments(r.Context(), docs)
	if ids == nil {
		ids = []index.DocID{}
	}
	if err != nil {
		if len(ids) == 0 {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, apperrors.HTTPStatusCode(err), ingestion.BatchResponse{
			DocumentIDs: ids,
			Status:      "partial",
			Error:       err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusCreated, ingestion.BatchResponse{DocumentIDs: ids, Status: "indexed"})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := docID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	doc, err := svc.Document(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentResponse{ID: id, Fields: doc})
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := docID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	if err := svc.DeleteDocument(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ingestion.IngestResponse{DocumentID: id, Status: "deleted"})
}

// SearchPath serves GET /api/v1/search/{field}/{text}.
func (h *Handler) SearchPath(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	result, err := svc.Search(r.Context(), r.PathValue("field"), r.PathValue("text"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// SearchQuery serves GET /api/v1/search?q=&field=&limit=.
func (h *Handler) SearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, r, apperrors.Invalid("query parameter 'q' is required"))
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	result, err := svc.Search(r.Context(), r.URL.Query().Get("field"), q, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// SearchTyped serves POST /api/v1/search.
func (h *Handler) SearchTyped(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Limit < 0 {
		h.writeError(w, r, apperrors.Invalid("limit must not be negative"))
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	search := svc.Search
	if req.Type != "" {
		search = func(ctx context.Context, field, text string, limit int) (*executor.SearchResult, error) {
			return svc.SearchTyped(ctx, field, req.Type, text, limit)
		}
	}
	result, err := search(r.Context(), req.Field, req.Query, req.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, svc.Stats())
}

func (h *Handler) Compact(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	purged := svc.Compact()
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "compacted", "purged": purged})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": h.registry.Sessions()})
}

// DropSession discards a session's index and its cached results.
func (h *Handler) DropSession(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	if !h.registry.Drop(session) {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrSessionNotFound, http.StatusNotFound, "session %q", session))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "dropped", "session": session})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	st := h.cache.Stats()
	var hitRate float64
	if total := st.Hits + st.Misses; total > 0 {
		hitRate = float64(st.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     st.Hits,
		"misses":   st.Misses,
		"errors":   st.Errors,
		"breaker":  st.Breaker,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops the caller's session entries, or every session's
// with ?scope=all.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	session := r.Header.Get(middleware.SessionHeader)
	if session == "" {
		session = searcher.DefaultSession
	}
	if r.URL.Query().Get("scope") == "all" {
		session = ""
	} else if err := searcher.ValidateSessionID(session); err != nil {
		h.writeError(w, r, err)
		return
	}
	deleted, err := h.cache.Invalidate(r.Context(), session)
	if err != nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge,
				"request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperrors.Invalid("invalid request body: %v", err)
	}
	return nil
}

func docID(r *http.Request) (index.DocID, error) {
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		return 0, apperrors.Invalid("document id must be a non-negative integer")
	}
	return index.DocID(n), nil
}

// limitParam reads ?limit=. Zero means the configured default; the
// service caps large values.
func limitParam(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, apperrors.Invalid("limit must be a positive integer")
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
