package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/store"
)

type createPolicyRequest struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Version         string                 `json:"version"`
	Enabled         *bool                  `json:"enabled"`
	MatchCriteria   models.MatchCriteria   `json:"match_criteria"`
	Rules           []models.Rule          `json:"rules"`
	DefaultSeverity string                 `json:"default_severity"`
	Regulation      string                 `json:"regulation"`
	Metadata        map[string]interface{} `json:"metadata"`
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	severity := models.Severity(req.DefaultSeverity)
	if severity == "" {
		severity = models.SeverityError
	}
	created, err := s.service.CreatePolicy(r.Context(), &models.Policy{
		Name:            req.Name,
		Description:     req.Description,
		Version:         req.Version,
		Enabled:         enabled,
		MatchCriteria:   req.MatchCriteria,
		Rules:           req.Rules,
		DefaultSeverity: severity,
		Regulation:      req.Regulation,
		Metadata:        req.Metadata,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePage(r)
	q := r.URL.Query()
	f := store.PolicyFilter{
		PackName: q.Get("pack"),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}
	if v := q.Get("enabled"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			f.Enabled = &enabled
		}
	}
	policies, total, err := s.service.ListPolicies(r.Context(), f)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondPaged(w, policies, page, pageSize, total)
}

type updatePolicyRequest struct {
	Description     *string                `json:"description"`
	Version         *string                `json:"version"`
	Enabled         *bool                  `json:"enabled"`
	MatchCriteria   models.MatchCriteria   `json:"match_criteria"`
	Rules           []models.Rule          `json:"rules"`
	DefaultSeverity *string                `json:"default_severity"`
	Regulation      *string                `json:"regulation"`
	Metadata        map[string]interface{} `json:"metadata"`
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	upd := store.PolicyUpdate{
		Description:   req.Description,
		Version:       req.Version,
		Enabled:       req.Enabled,
		MatchCriteria: req.MatchCriteria,
		Rules:         req.Rules,
		Regulation:    req.Regulation,
		Metadata:      req.Metadata,
	}
	if req.DefaultSeverity != nil {
		severity := models.Severity(*req.DefaultSeverity)
		upd.DefaultSeverity = &severity
	}
	updated, err := s.service.UpdatePolicy(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePolicy(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type evaluateRequest struct {
	SystemID string                 `json:"system_id"`
	Action   string                 `json:"action"`
	Context  map[string]interface{} `json:"context"`
}

// handleEvaluate runs the policy engine without mutating anything. A
// blocked outcome is still a 200; the decision is the payload.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.SystemID == "" || req.Action == "" {
		respondError(w, http.StatusBadRequest, "system_id and action required")
		return
	}
	result, err := s.service.EvaluateAction(r.Context(), req.SystemID, req.Action, req.Context)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
