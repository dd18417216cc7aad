package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// PoliciesService covers policy CRUD and the evaluation endpoint.
type PoliciesService struct {
	c *Client
}

type CreatePolicyRequest struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	Version         string                 `json:"version,omitempty"`
	Enabled         *bool                  `json:"enabled,omitempty"`
	MatchCriteria   map[string]interface{} `json:"match_criteria,omitempty"`
	Rules           []Rule                 `json:"rules,omitempty"`
	DefaultSeverity string                 `json:"default_severity,omitempty"`
	Regulation      string                 `json:"regulation,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func (s *PoliciesService) Create(ctx context.Context, req CreatePolicyRequest) (*Policy, error) {
	var out Policy
	if err := s.c.do(ctx, http.MethodPost, "/api/v1/policies", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PoliciesService) Get(ctx context.Context, id string) (*Policy, error) {
	var out Policy
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/policies/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ListPoliciesOptions struct {
	Pack     string
	Enabled  *bool
	Page     int
	PageSize int
}

type PolicyPage struct {
	Data []Policy `json:"data"`
	Meta PageMeta `json:"meta"`
}

func (s *PoliciesService) List(ctx context.Context, opts ListPoliciesOptions) (*PolicyPage, error) {
	q := url.Values{}
	setIfNotEmpty(q, "pack", opts.Pack)
	if opts.Enabled != nil {
		q.Set("enabled", strconv.FormatBool(*opts.Enabled))
	}
	setPage(q, opts.Page, opts.PageSize)

	var out PolicyPage
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/policies", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type UpdatePolicyRequest struct {
	Description     *string                `json:"description,omitempty"`
	Version         *string                `json:"version,omitempty"`
	Enabled         *bool                  `json:"enabled,omitempty"`
	MatchCriteria   map[string]interface{} `json:"match_criteria,omitempty"`
	Rules           []Rule                 `json:"rules,omitempty"`
	DefaultSeverity *string                `json:"default_severity,omitempty"`
	Regulation      *string                `json:"regulation,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func (s *PoliciesService) Update(ctx context.Context, id string, req UpdatePolicyRequest) (*Policy, error) {
	var out Policy
	if err := s.c.do(ctx, http.MethodPatch, "/api/v1/policies/"+id, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PoliciesService) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, http.MethodDelete, "/api/v1/policies/"+id, nil, nil, nil)
}

type EvaluateRequest struct {
	SystemID string                 `json:"system_id"`
	Action   string                 `json:"action"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Evaluate asks the server what the policy engine would decide for an
// action. It never mutates state; a blocked decision comes back as a
// normal result with Allowed=false.
func (s *PoliciesService) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluationResult, error) {
	var out EvaluationResult
	if err := s.c.do(ctx, http.MethodPost, "/api/v1/policies/evaluate", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
