package models

import "time"

// ControlCategory groups governance controls by the risk they address.
type ControlCategory string

const (
	ControlCategoryAccuracy       ControlCategory = "accuracy"
	ControlCategoryBias           ControlCategory = "bias"
	ControlCategorySecurity       ControlCategory = "security"
	ControlCategoryPrivacy        ControlCategory = "privacy"
	ControlCategorySafety         ControlCategory = "safety"
	ControlCategoryTransparency   ControlCategory = "transparency"
	ControlCategoryRobustness     ControlCategory = "robustness"
	ControlCategoryAccountability ControlCategory = "accountability"
)

func (c ControlCategory) Valid() bool {
	switch c {
	case ControlCategoryAccuracy, ControlCategoryBias, ControlCategorySecurity,
		ControlCategoryPrivacy, ControlCategorySafety, ControlCategoryTransparency,
		ControlCategoryRobustness, ControlCategoryAccountability:
		return true
	}
	return false
}

// ControlStatus tracks how far a system has taken one control.
type ControlStatus string

const (
	ControlStatusPending       ControlStatus = "pending"
	ControlStatusImplemented   ControlStatus = "implemented"
	ControlStatusTested        ControlStatus = "tested"
	ControlStatusVerified      ControlStatus = "verified"
	ControlStatusFailed        ControlStatus = "failed"
	ControlStatusNotApplicable ControlStatus = "not_applicable"
)

func (s ControlStatus) Valid() bool {
	switch s {
	case ControlStatusPending, ControlStatusImplemented, ControlStatusTested,
		ControlStatusVerified, ControlStatusFailed, ControlStatusNotApplicable:
		return true
	}
	return false
}

// Control is a requirement from a regulation or framework that registered
// systems must satisfy. IDs follow the CTRL-{CATEGORY}-{NUMBER} pattern and
// are assigned by policy administrators, not generated.
type Control struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Category        ControlCategory `json:"category"`
	Regulation      string          `json:"regulation,omitempty"` // e.g. EU-AI-ACT, NIST-AI-RMF
	RequirementText string          `json:"requirement_text,omitempty"`
	TestGuidance    string          `json:"test_guidance,omitempty"`
	Mandatory       bool            `json:"mandatory"`
	AppliesToTiers  []RiskTier      `json:"applies_to_risk_tiers,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SystemControl is the assignment of a control to a system, tracking the
// implementation status for that pair.
type SystemControl struct {
	SystemID         string        `json:"system_id"`
	ControlID        string        `json:"control_id"`
	Status           ControlStatus `json:"status"`
	EvidenceRequired bool          `json:"evidence_required"`
	Notes            string        `json:"notes,omitempty"`
	LastUpdatedBy    string        `json:"last_updated_by,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
