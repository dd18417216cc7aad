// Package httpserver exposes the registry over HTTP: entity CRUD, policy
// evaluation, and the audit surface. Core semantics live in the service
// and ledger packages; this layer only parses, dispatches, and renders.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vorpalhq/vorpal/internal/auth"
	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/service"
)

type Server struct {
	service  *service.Service
	resolver *auth.Resolver
	logger   *slog.Logger
}

func New(svc *service.Service, resolver *auth.Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service:  svc,
		resolver: resolver,
		logger:   logger.With("component", "http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.resolver.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/systems", func(r chi.Router) {
			r.Get("/", s.handleListSystems)
			r.Post("/", s.handleCreateSystem)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSystem)
				r.Patch("/", s.handleUpdateSystem)
				r.Delete("/", s.handleDeleteSystem)
				r.Route("/controls", func(r chi.Router) {
					r.Get("/", s.handleListSystemControls)
					r.Post("/", s.handleAssignControl)
					r.Patch("/{controlID}", s.handleUpdateSystemControl)
					r.Delete("/{controlID}", s.handleUnassignControl)
				})
			})
		})

		r.Route("/controls", func(r chi.Router) {
			r.Get("/", s.handleListControls)
			r.Post("/", s.handleCreateControl)
			r.Get("/{id}", s.handleGetControl)
			r.Patch("/{id}", s.handleUpdateControl)
			r.Delete("/{id}", s.handleDeleteControl)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", s.handleListPolicies)
			r.Post("/", s.handleCreatePolicy)
			r.Post("/evaluate", s.handleEvaluate)
			r.Get("/{id}", s.handleGetPolicy)
			r.Patch("/{id}", s.handleUpdatePolicy)
			r.Delete("/{id}", s.handleDeletePolicy)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", s.handleListAuditEvents)
			r.Get("/verify/chain", s.handleVerifyChain)
			r.Get("/{id}", s.handleGetAuditEvent)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{"ok": true}
	if err := s.service.Ping(ctx); err != nil {
		status["ok"] = false
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// pageMeta is the pagination envelope returned by every list endpoint.
type pageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type pagedResponse struct {
	Data interface{} `json:"data"`
	Meta pageMeta    `json:"meta"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parsePage(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = defaultPageSize
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func respondPaged(w http.ResponseWriter, data interface{}, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	respondJSON(w, http.StatusOK, pagedResponse{
		Data: data,
		Meta: pageMeta{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages},
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError maps domain failures to status codes. Policy-blocked
// actions return 403 with the full evaluation result so UIs can show the
// specific blocking messages.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var blocked *service.PolicyBlockedError
	switch {
	case errors.As(err, &blocked):
		respondJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":      blocked.Error(),
			"evaluation": blocked.Result,
		})
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
