package models

// RuleResult is the outcome of evaluating a single rule. Error carries an
// evaluator fault (the condition could not be resolved to a boolean); it is
// distinct from a normal failure so operators can tell "policy says no"
// apart from "policy is broken".
type RuleResult struct {
	RuleName string   `json:"rule_name"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message,omitempty"` // set only on failure
	Severity Severity `json:"severity"`
	Error    string   `json:"error,omitempty"`
}

// PolicyResult is the outcome of one matching policy. A policy passes iff
// none of its rules both fail and carry error severity.
type PolicyResult struct {
	PolicyID    string       `json:"policy_id"`
	PolicyName  string       `json:"policy_name"`
	Passed      bool         `json:"passed"`
	RuleResults []RuleResult `json:"rule_results"`
}

// EvaluationResult is the per-request decision returned by the policy
// engine. It is never persisted; callers that need a durable record append
// an audit event describing it.
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
