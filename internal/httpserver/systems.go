package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/store"
)

type createSystemRequest struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Type          string                 `json:"type"`
	Status        string                 `json:"status"`
	RiskTier      string                 `json:"risk_tier"`
	AutonomyLevel *int                   `json:"autonomy_level"`
	OwnerID       string                 `json:"owner_id"`
	TeamID        string                 `json:"team_id"`
	Version       string                 `json:"version"`
	Metadata      map[string]interface{} `json:"metadata"`
	Documentation map[string]interface{} `json:"documentation"`
	Tags          []string               `json:"tags"`
}

func (s *Server) handleCreateSystem(w http.ResponseWriter, r *http.Request) {
	var req createSystemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	created, err := s.service.CreateSystem(r.Context(), &models.AISystem{
		Name:          req.Name,
		Description:   req.Description,
		Type:          models.SystemType(req.Type),
		Status:        models.SystemStatus(req.Status),
		RiskTier:      models.RiskTier(req.RiskTier),
		AutonomyLevel: req.AutonomyLevel,
		OwnerID:       req.OwnerID,
		TeamID:        req.TeamID,
		Version:       req.Version,
		Metadata:      req.Metadata,
		Documentation: req.Documentation,
		Tags:          req.Tags,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	sys, err := s.service.GetSystem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sys)
}

func (s *Server) handleListSystems(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePage(r)
	q := r.URL.Query()
	f := store.SystemFilter{
		Status:   models.SystemStatus(q.Get("status")),
		RiskTier: models.RiskTier(q.Get("risk_tier")),
		Type:     models.SystemType(q.Get("type")),
		Tag:      q.Get("tag"),
		OwnerID:  q.Get("owner_id"),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}
	systems, total, err := s.service.ListSystems(r.Context(), f)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondPaged(w, systems, page, pageSize, total)
}

type updateSystemRequest struct {
	Name          *string                `json:"name"`
	Description   *string                `json:"description"`
	Status        *string                `json:"status"`
	RiskTier      *string                `json:"risk_tier"`
	AutonomyLevel *int                   `json:"autonomy_level"`
	OwnerID       *string                `json:"owner_id"`
	TeamID        *string                `json:"team_id"`
	Version       *string                `json:"version"`
	Metadata      map[string]interface{} `json:"metadata"`
	Documentation map[string]interface{} `json:"documentation"`
	Tags          []string               `json:"tags"`
}

func (s *Server) handleUpdateSystem(w http.ResponseWriter, r *http.Request) {
	var req updateSystemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	upd := store.SystemUpdate{
		Name:          req.Name,
		Description:   req.Description,
		AutonomyLevel: req.AutonomyLevel,
		OwnerID:       req.OwnerID,
		TeamID:        req.TeamID,
		Version:       req.Version,
		Metadata:      req.Metadata,
		Documentation: req.Documentation,
		Tags:          req.Tags,
	}
	if req.Status != nil {
		status := models.SystemStatus(*req.Status)
		upd.Status = &status
	}
	if req.RiskTier != nil {
		tier := models.RiskTier(*req.RiskTier)
		upd.RiskTier = &tier
	}
	updated, err := s.service.UpdateSystem(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSystem(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSystem(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
