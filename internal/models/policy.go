package models

import "time"

// Severity classifies a rule failure. Error-severity failures block the
// action; warning and info severities are advisory only.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Rule is a single policy rule. Condition is an opaque expression string
// interpreted by the configured condition evaluator. Severity is optional;
// an empty value falls back to the owning policy's DefaultSeverity.
type Rule struct {
	Name      string   `json:"name" yaml:"name"`
	Condition string   `json:"condition" yaml:"condition"`
	Message   string   `json:"message" yaml:"message"`
	Severity  Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// MatchCriteria declares which (system, action) pairs a policy applies to.
// Recognized keys are "risk_tier", "action", "type" (scalar or list each)
// and "tags" with a nested "contains" list. Unrecognized keys are ignored
// so older binaries tolerate newer criteria; absent keys constrain nothing.
type MatchCriteria map[string]interface{}

// Policy is a governance policy: match criteria deciding when it applies
// plus an ordered list of rules evaluated when it does. Rule order is the
// declared evaluation order and must be preserved end to end.
type Policy struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"` // unique
	Description     string                 `json:"description,omitempty"`
	Version         string                 `json:"version"`
	Enabled         bool                   `json:"enabled"`
	MatchCriteria   MatchCriteria          `json:"match_criteria"`
	Rules           []Rule                 `json:"rules"`
	DefaultSeverity Severity               `json:"default_severity"`
	Regulation      string                 `json:"regulation,omitempty"`
	PackName        string                 `json:"pack_name,omitempty"`
	CreatedBy       string                 `json:"created_by,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// EffectiveSeverity resolves a rule's severity against the policy default.
func (p *Policy) EffectiveSeverity(r Rule) Severity {
	if r.Severity.Valid() {
		return r.Severity
	}
	if p.DefaultSeverity.Valid() {
		return p.DefaultSeverity
	}
	return SeverityError
}
