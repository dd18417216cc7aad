package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/store"
)

type createControlRequest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Regulation      string   `json:"regulation"`
	RequirementText string   `json:"requirement_text"`
	TestGuidance    string   `json:"test_guidance"`
	Mandatory       bool     `json:"mandatory"`
	AppliesToTiers  []string `json:"applies_to_risk_tiers"`
}

func (s *Server) handleCreateControl(w http.ResponseWriter, r *http.Request) {
	var req createControlRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	tiers := make([]models.RiskTier, len(req.AppliesToTiers))
	for i, t := range req.AppliesToTiers {
		tiers[i] = models.RiskTier(t)
	}
	created, err := s.service.CreateControl(r.Context(), &models.Control{
		ID:              req.ID,
		Name:            req.Name,
		Description:     req.Description,
		Category:        models.ControlCategory(req.Category),
		Regulation:      req.Regulation,
		RequirementText: req.RequirementText,
		TestGuidance:    req.TestGuidance,
		Mandatory:       req.Mandatory,
		AppliesToTiers:  tiers,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetControl(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetControl(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListControls(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePage(r)
	q := r.URL.Query()
	f := store.ControlFilter{
		Category:   models.ControlCategory(q.Get("category")),
		Regulation: q.Get("regulation"),
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	}
	if v := q.Get("mandatory"); v != "" {
		if mandatory, err := strconv.ParseBool(v); err == nil {
			f.Mandatory = &mandatory
		}
	}
	controls, total, err := s.service.ListControls(r.Context(), f)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondPaged(w, controls, page, pageSize, total)
}

type updateControlRequest struct {
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	Category        *string  `json:"category"`
	Regulation      *string  `json:"regulation"`
	RequirementText *string  `json:"requirement_text"`
	TestGuidance    *string  `json:"test_guidance"`
	Mandatory       *bool    `json:"mandatory"`
	AppliesToTiers  []string `json:"applies_to_risk_tiers"`
}

func (s *Server) handleUpdateControl(w http.ResponseWriter, r *http.Request) {
	var req updateControlRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	upd := store.ControlUpdate{
		Name:            req.Name,
		Description:     req.Description,
		Regulation:      req.Regulation,
		RequirementText: req.RequirementText,
		TestGuidance:    req.TestGuidance,
		Mandatory:       req.Mandatory,
	}
	if req.Category != nil {
		category := models.ControlCategory(*req.Category)
		upd.Category = &category
	}
	if req.AppliesToTiers != nil {
		tiers := make([]models.RiskTier, len(req.AppliesToTiers))
		for i, t := range req.AppliesToTiers {
			tiers[i] = models.RiskTier(t)
		}
		upd.AppliesToTiers = tiers
	}
	updated, err := s.service.UpdateControl(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteControl(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteControl(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignControlRequest struct {
	ControlID        string `json:"control_id"`
	Status           string `json:"status"`
	EvidenceRequired bool   `json:"evidence_required"`
	Notes            string `json:"notes"`
}

func (s *Server) handleAssignControl(w http.ResponseWriter, r *http.Request) {
	var req assignControlRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	created, err := s.service.AssignControl(r.Context(), &models.SystemControl{
		SystemID:         chi.URLParam(r, "id"),
		ControlID:        req.ControlID,
		Status:           models.ControlStatus(req.Status),
		EvidenceRequired: req.EvidenceRequired,
		Notes:            req.Notes,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSystemControls(w http.ResponseWriter, r *http.Request) {
	controls, err := s.service.ListSystemControls(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, controls)
}

type updateSystemControlRequest struct {
	Status           *string `json:"status"`
	EvidenceRequired *bool   `json:"evidence_required"`
	Notes            *string `json:"notes"`
	LastUpdatedBy    *string `json:"last_updated_by"`
}

func (s *Server) handleUpdateSystemControl(w http.ResponseWriter, r *http.Request) {
	var req updateSystemControlRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	upd := store.SystemControlUpdate{
		EvidenceRequired: req.EvidenceRequired,
		Notes:            req.Notes,
		LastUpdatedBy:    req.LastUpdatedBy,
	}
	if req.Status != nil {
		status := models.ControlStatus(*req.Status)
		upd.Status = &status
	}
	updated, err := s.service.UpdateSystemControl(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "controlID"), upd)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUnassignControl(w http.ResponseWriter, r *http.Request) {
	err := s.service.UnassignControl(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "controlID"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
