// Package store persists the registry entities: AI systems, controls,
// control assignments, and policies. The audit ledger has its own store
// under internal/ledger; events never mix with entity rows.
package store

import (
	"context"

	"github.com/vorpalhq/vorpal/internal/models"
)

// Store is the persistence contract for registry entities. Duplicate
// unique keys (policy name, control id, existing assignment) surface as
// models.ErrConflict; missing rows as models.ErrNotFound.
type Store interface {
	CreateSystem(ctx context.Context, sys *models.AISystem) (*models.AISystem, error)
	GetSystem(ctx context.Context, id string) (*models.AISystem, error)
	ListSystems(ctx context.Context, f SystemFilter) ([]models.AISystem, int, error)
	UpdateSystem(ctx context.Context, id string, upd SystemUpdate) (*models.AISystem, error)
	DeleteSystem(ctx context.Context, id string) error

	CreateControl(ctx context.Context, c *models.Control) (*models.Control, error)
	GetControl(ctx context.Context, id string) (*models.Control, error)
	ListControls(ctx context.Context, f ControlFilter) ([]models.Control, int, error)
	UpdateControl(ctx context.Context, id string, upd ControlUpdate) (*models.Control, error)
	DeleteControl(ctx context.Context, id string) error

	AssignControl(ctx context.Context, sc *models.SystemControl) (*models.SystemControl, error)
	ListSystemControls(ctx context.Context, systemID string) ([]models.SystemControl, error)
	UpdateSystemControl(ctx context.Context, systemID, controlID string, upd SystemControlUpdate) (*models.SystemControl, error)
	UnassignControl(ctx context.Context, systemID, controlID string) error

	CreatePolicy(ctx context.Context, p *models.Policy) (*models.Policy, error)
	GetPolicy(ctx context.Context, id string) (*models.Policy, error)
	GetPolicyByName(ctx context.Context, name string) (*models.Policy, error)
	ListPolicies(ctx context.Context, f PolicyFilter) ([]models.Policy, int, error)
	// ListEnabledPolicies returns enabled policies ordered by
	// (created_at, id) so evaluation order is deterministic.
	ListEnabledPolicies(ctx context.Context) ([]models.Policy, error)
	UpdatePolicy(ctx context.Context, id string, upd PolicyUpdate) (*models.Policy, error)
	// UpsertPolicyByName creates the policy or fully replaces the existing
	// policy with the same name, preserving its id and created_at.
	UpsertPolicyByName(ctx context.Context, p *models.Policy) (*models.Policy, error)
	DeletePolicy(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

// SystemFilter selects systems for listing. Zero-valued fields impose no
// constraint.
type SystemFilter struct {
	Status   models.SystemStatus
	RiskTier models.RiskTier
	Type     models.SystemType
	Tag      string
	OwnerID  string
	Limit    int
	Offset   int
}

// SystemUpdate is a partial update; nil fields are left unchanged.
type SystemUpdate struct {
	Name          *string
	Description   *string
	Status        *models.SystemStatus
	RiskTier      *models.RiskTier
	AutonomyLevel *int
	OwnerID       *string
	TeamID        *string
	Version       *string
	Metadata      map[string]interface{}
	Documentation map[string]interface{}
	Tags          []string
}

type ControlFilter struct {
	Category   models.ControlCategory
	Regulation string
	Mandatory  *bool
	Limit      int
	Offset     int
}

type ControlUpdate struct {
	Name            *string
	Description     *string
	Category        *models.ControlCategory
	Regulation      *string
	RequirementText *string
	TestGuidance    *string
	Mandatory       *bool
	AppliesToTiers  []models.RiskTier
}

type SystemControlUpdate struct {
	Status           *models.ControlStatus
	EvidenceRequired *bool
	Notes            *string
	LastUpdatedBy    *string
}

type PolicyFilter struct {
	Enabled  *bool
	PackName string
	Limit    int
	Offset   int
}

// PolicyUpdate is a partial update; nil fields are left unchanged. Rules
// replace atomically so an in-flight evaluation never sees a half-updated
// rule list.
type PolicyUpdate struct {
	Description     *string
	Version         *string
	Enabled         *bool
	MatchCriteria   models.MatchCriteria
	Rules           []models.Rule
	DefaultSeverity *models.Severity
	Regulation      *string
	Metadata        map[string]interface{}
}
