// Package models contains the canonical registry entities shared by the
// stores, the policy engine, and the HTTP surface.
package models

import "time"

// SystemType classifies what kind of AI component is registered.
type SystemType string

const (
	SystemTypeModel       SystemType = "model"
	SystemTypeApplication SystemType = "application"
	SystemTypeAgent       SystemType = "agent"
	SystemTypePipeline    SystemType = "pipeline"
)

func (t SystemType) Valid() bool {
	switch t {
	case SystemTypeModel, SystemTypeApplication, SystemTypeAgent, SystemTypePipeline:
		return true
	}
	return false
}

// SystemStatus is the lifecycle status of a registered system.
type SystemStatus string

const (
	SystemStatusDraft      SystemStatus = "draft"
	SystemStatusReview     SystemStatus = "review"
	SystemStatusApproved   SystemStatus = "approved"
	SystemStatusDeployed   SystemStatus = "deployed"
	SystemStatusDeprecated SystemStatus = "deprecated"
)

func (s SystemStatus) Valid() bool {
	switch s {
	case SystemStatusDraft, SystemStatusReview, SystemStatusApproved, SystemStatusDeployed, SystemStatusDeprecated:
		return true
	}
	return false
}

// RiskTier is the regulatory risk classification of a system.
type RiskTier string

const (
	RiskTierProhibited RiskTier = "prohibited"
	RiskTierHigh       RiskTier = "high"
	RiskTierLimited    RiskTier = "limited"
	RiskTierMinimal    RiskTier = "minimal"
)

func (r RiskTier) Valid() bool {
	switch r {
	case RiskTierProhibited, RiskTierHigh, RiskTierLimited, RiskTierMinimal:
		return true
	}
	return false
}

// AISystem is a registry entry for any AI component under governance:
// models, applications, autonomous agents, and pipelines.
type AISystem struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Type          SystemType             `json:"type"`
	Status        SystemStatus           `json:"status"`
	RiskTier      RiskTier               `json:"risk_tier"`
	AutonomyLevel *int                   `json:"autonomy_level,omitempty"` // 1..5, agents only
	OwnerID       string                 `json:"owner_id,omitempty"`
	TeamID        string                 `json:"team_id,omitempty"`
	Version       string                 `json:"version,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Documentation map[string]interface{} `json:"documentation,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// HasTag reports whether the system carries the given tag.
func (s *AISystem) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
