package client

import "time"

// PageMeta is the pagination envelope of list responses.
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// System is a registered AI system.
type System struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Type          string                 `json:"type"`
	Status        string                 `json:"status"`
	RiskTier      string                 `json:"risk_tier"`
	AutonomyLevel *int                   `json:"autonomy_level,omitempty"`
	OwnerID       string                 `json:"owner_id,omitempty"`
	TeamID        string                 `json:"team_id,omitempty"`
	Version       string                 `json:"version,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Documentation map[string]interface{} `json:"documentation,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Control is a governance requirement.
type Control struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category"`
	Regulation      string    `json:"regulation,omitempty"`
	RequirementText string    `json:"requirement_text,omitempty"`
	TestGuidance    string    `json:"test_guidance,omitempty"`
	Mandatory       bool      `json:"mandatory"`
	AppliesToTiers  []string  `json:"applies_to_risk_tiers,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SystemControl is a control assigned to a system.
type SystemControl struct {
	SystemID         string    `json:"system_id"`
	ControlID        string    `json:"control_id"`
	Status           string    `json:"status"`
	EvidenceRequired bool      `json:"evidence_required"`
	Notes            string    `json:"notes,omitempty"`
	LastUpdatedBy    string    `json:"last_updated_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Rule is one policy rule.
type Rule struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Message   string `json:"message"`
	Severity  string `json:"severity,omitempty"`
}

// Policy is a governance policy.
type Policy struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	Version         string                 `json:"version"`
	Enabled         bool                   `json:"enabled"`
	MatchCriteria   map[string]interface{} `json:"match_criteria"`
	Rules           []Rule                 `json:"rules"`
	DefaultSeverity string                 `json:"default_severity"`
	Regulation      string                 `json:"regulation,omitempty"`
	PackName        string                 `json:"pack_name,omitempty"`
	CreatedBy       string                 `json:"created_by,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// RuleResult is the outcome of one rule evaluation.
type RuleResult struct {
	RuleName string `json:"rule_name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity"`
	Error    string `json:"error,omitempty"`
}

// PolicyResult is the outcome of one matching policy.
type PolicyResult struct {
	PolicyID    string       `json:"policy_id"`
	PolicyName  string       `json:"policy_name"`
	Passed      bool         `json:"passed"`
	RuleResults []RuleResult `json:"rule_results"`
}

// EvaluationResult is a full policy decision.
type EvaluationResult struct {
	Allowed           bool           `json:"allowed"`
	SystemID          string         `json:"system_id"`
	Action            string         `json:"action"`
	PoliciesEvaluated int            `json:"policies_evaluated"`
	PoliciesPassed    int            `json:"policies_passed"`
	PoliciesFailed    int            `json:"policies_failed"`
	Results           []PolicyResult `json:"results"`
	BlockingFailures  []string       `json:"blocking_failures"`
	Warnings          []string       `json:"warnings"`
}

// Actor is the principal recorded on an audit event.
type Actor struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name,omitempty"`
}

// Resource identifies what an audit event affected.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// AuditEvent is one ledger entry.
type AuditEvent struct {
	ID           string                 `json:"id"`
	SystemID     *string                `json:"system_id,omitempty"`
	EventType    string                 `json:"event_type"`
	Actor        Actor                  `json:"actor"`
	Action       string                 `json:"action"`
	Resource     *Resource              `json:"resource,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PreviousHash string                 `json:"previous_hash,omitempty"`
	EventHash    string                 `json:"event_hash"`
	Timestamp    time.Time              `json:"timestamp"`
}

// VerificationReport is the outcome of a chain verification run.
type VerificationReport struct {
	Verified            bool    `json:"verified"`
	TotalEvents         int     `json:"total_events"`
	ValidEvents         int     `json:"valid_events"`
	InvalidEvents       int     `json:"invalid_events"`
	FirstInvalidEventID *string `json:"first_invalid_event_id,omitempty"`
	Message             string  `json:"message"`
}
