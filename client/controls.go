package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ControlsService is the /api/v1/controls request group plus the
// per-system assignment endpoints.
type ControlsService struct {
	c *Client
}

type CreateControlRequest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Category        string   `json:"category"`
	Regulation      string   `json:"regulation,omitempty"`
	RequirementText string   `json:"requirement_text,omitempty"`
	TestGuidance    string   `json:"test_guidance,omitempty"`
	Mandatory       bool     `json:"mandatory"`
	AppliesToTiers  []string `json:"applies_to_risk_tiers,omitempty"`
}

func (s *ControlsService) Create(ctx context.Context, req CreateControlRequest) (*Control, error) {
	var out Control
	if err := s.c.do(ctx, http.MethodPost, "/api/v1/controls", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ControlsService) Get(ctx context.Context, id string) (*Control, error) {
	var out Control
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/controls/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ListControlsOptions struct {
	Category   string
	Regulation string
	Mandatory  *bool
	Page       int
	PageSize   int
}

type ControlPage struct {
	Data []Control `json:"data"`
	Meta PageMeta  `json:"meta"`
}

func (s *ControlsService) List(ctx context.Context, opts ListControlsOptions) (*ControlPage, error) {
	q := url.Values{}
	setIfNotEmpty(q, "category", opts.Category)
	setIfNotEmpty(q, "regulation", opts.Regulation)
	if opts.Mandatory != nil {
		q.Set("mandatory", strconv.FormatBool(*opts.Mandatory))
	}
	setPage(q, opts.Page, opts.PageSize)

	var out ControlPage
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/controls", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type UpdateControlRequest struct {
	Name            *string  `json:"name,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Regulation      *string  `json:"regulation,omitempty"`
	RequirementText *string  `json:"requirement_text,omitempty"`
	TestGuidance    *string  `json:"test_guidance,omitempty"`
	Mandatory       *bool    `json:"mandatory,omitempty"`
	AppliesToTiers  []string `json:"applies_to_risk_tiers,omitempty"`
}

func (s *ControlsService) Update(ctx context.Context, id string, req UpdateControlRequest) (*Control, error) {
	var out Control
	if err := s.c.do(ctx, http.MethodPatch, "/api/v1/controls/"+id, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ControlsService) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, http.MethodDelete, "/api/v1/controls/"+id, nil, nil, nil)
}

type AssignControlRequest struct {
	ControlID        string `json:"control_id"`
	Status           string `json:"status,omitempty"`
	EvidenceRequired bool   `json:"evidence_required,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

func (s *ControlsService) Assign(ctx context.Context, systemID string, req AssignControlRequest) (*SystemControl, error) {
	var out SystemControl
	if err := s.c.do(ctx, http.MethodPost, "/api/v1/systems/"+systemID+"/controls", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ControlsService) ListForSystem(ctx context.Context, systemID string) ([]SystemControl, error) {
	var out []SystemControl
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/systems/"+systemID+"/controls", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type UpdateAssignmentRequest struct {
	Status           *string `json:"status,omitempty"`
	EvidenceRequired *bool   `json:"evidence_required,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	LastUpdatedBy    *string `json:"last_updated_by,omitempty"`
}

func (s *ControlsService) UpdateAssignment(ctx context.Context, systemID, controlID string, req UpdateAssignmentRequest) (*SystemControl, error) {
	var out SystemControl
	path := "/api/v1/systems/" + systemID + "/controls/" + controlID
	if err := s.c.do(ctx, http.MethodPatch, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ControlsService) Unassign(ctx context.Context, systemID, controlID string) error {
	return s.c.do(ctx, http.MethodDelete, "/api/v1/systems/"+systemID+"/controls/"+controlID, nil, nil, nil)
}
