package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"landing-sentinel/internal/metrics"
	"landing-sentinel/internal/model"
	"landing-sentinel/internal/monitor"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// StatusProvider 는 monitor.Monitor.
type StatusProvider interface {
	Status() monitor.Status
}

// AuditReader 는 audit.SQLSink (SQL sink 가 없으면 nil).
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

const maxRecentLimit = 500

type Handler struct {
	metrics *metrics.Metrics
	status  StatusProvider
	audit   AuditReader
}

func NewHandler(m *metrics.Metrics, s StatusProvider, a AuditReader) *Handler {
	return &Handler{metrics: m, status: s, audit: a}
}

// Router
//
// 운영자용 endpoint 만 노출한다 (데이터 수집 경로 없음).
//   - GET /health        : liveness
//   - GET /metrics       : key=value 카운터
//   - GET /status        : monitor 상태 JSON
//   - GET /audit/recent  : 최근 audit entry (SQL sink 설정 시)
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", h.HandleMetrics)
	r.Get("/status", h.HandleStatus)
	r.Get("/audit/recent", h.HandleRecentAudit)
	return r
}

// HandleMetrics 는 카운터 값들을 text 로 출력한다.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	if h.status == nil {
		http.Error(w, "monitor not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.status.Status())
}

// HandleRecentAudit
//
// ?limit=N (기본 20, 최대 500). SQL sink 가 없으면 404.
func (h *Handler) HandleRecentAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.Error(w, "audit store not configured", http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	entries, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("read recent audit entries")
		http.Error(w, "audit store unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// accessLog 는 요청 1건을 debug 레벨 zerolog 로 남긴다.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}
