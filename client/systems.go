package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// SystemsService is the /api/v1/systems request group.
type SystemsService struct {
	c *Client
}

type CreateSystemRequest struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Type          string                 `json:"type"`
	Status        string                 `json:"status,omitempty"`
	RiskTier      string                 `json:"risk_tier"`
	AutonomyLevel *int                   `json:"autonomy_level,omitempty"`
	OwnerID       string                 `json:"owner_id,omitempty"`
	TeamID        string                 `json:"team_id,omitempty"`
	Version       string                 `json:"version,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Documentation map[string]interface{} `json:"documentation,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
}

func (s *SystemsService) Create(ctx context.Context, req CreateSystemRequest) (*System, error) {
	var out System
	if err := s.c.do(ctx, http.MethodPost, "/api/v1/systems", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SystemsService) Get(ctx context.Context, id string) (*System, error) {
	var out System
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/systems/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ListSystemsOptions struct {
	Status   string
	RiskTier string
	Type     string
	Tag      string
	OwnerID  string
	Page     int
	PageSize int
}

type SystemPage struct {
	Data []System `json:"data"`
	Meta PageMeta `json:"meta"`
}

func (s *SystemsService) List(ctx context.Context, opts ListSystemsOptions) (*SystemPage, error) {
	q := url.Values{}
	setIfNotEmpty(q, "status", opts.Status)
	setIfNotEmpty(q, "risk_tier", opts.RiskTier)
	setIfNotEmpty(q, "type", opts.Type)
	setIfNotEmpty(q, "tag", opts.Tag)
	setIfNotEmpty(q, "owner_id", opts.OwnerID)
	setPage(q, opts.Page, opts.PageSize)

	var out SystemPage
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/systems", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type UpdateSystemRequest struct {
	Name          *string                `json:"name,omitempty"`
	Description   *string                `json:"description,omitempty"`
	Status        *string                `json:"status,omitempty"`
	RiskTier      *string                `json:"risk_tier,omitempty"`
	AutonomyLevel *int                   `json:"autonomy_level,omitempty"`
	OwnerID       *string                `json:"owner_id,omitempty"`
	TeamID        *string                `json:"team_id,omitempty"`
	Version       *string                `json:"version,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Documentation map[string]interface{} `json:"documentation,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
}

func (s *SystemsService) Update(ctx context.Context, id string, req UpdateSystemRequest) (*System, error) {
	var out System
	if err := s.c.do(ctx, http.MethodPatch, "/api/v1/systems/"+id, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SystemsService) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, http.MethodDelete, "/api/v1/systems/"+id, nil, nil, nil)
}

func setIfNotEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setPage(q url.Values, page, pageSize int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
}
