// Package policy implements the rule-based decision engine: matching
// enabled policies against a system/action pair, evaluating each matching
// policy's rules in order, and aggregating the allow/block outcome.
package policy

import (
	"github.com/vorpalhq/vorpal/internal/models"
)

// Matches reports whether a policy's match criteria apply to the given
// system and action. Each recognized key constrains independently and all
// present keys must be satisfied. Absent keys impose no constraint, so
// empty criteria match everything. Unrecognized keys are ignored.
func Matches(criteria models.MatchCriteria, system *models.AISystem, action string) bool {
	if v, ok := criteria["risk_tier"]; ok {
		if !containsString(v, string(system.RiskTier)) {
			return false
		}
	}
	if v, ok := criteria["action"]; ok {
		if !containsString(v, action) {
			return false
		}
	}
	if v, ok := criteria["type"]; ok {
		if !containsString(v, string(system.Type)) {
			return false
		}
	}
	if required, ok := tagsContains(criteria); ok {
		if !intersects(required, system.Tags) {
			return false
		}
	}
	return true
}

// tagsContains extracts the required-tags set. Both the flat "tags.contains"
// key and the nested {"tags": {"contains": [...]}} form are accepted.
func tagsContains(criteria models.MatchCriteria) ([]string, bool) {
	if v, ok := criteria["tags.contains"]; ok {
		return toStringSet(v), true
	}
	if v, ok := criteria["tags"]; ok {
		if nested, ok := v.(map[string]interface{}); ok {
			if c, ok := nested["contains"]; ok {
				return toStringSet(c), true
			}
		}
	}
	return nil, false
}

// containsString treats a scalar criterion value as a one-element set.
func containsString(criterion interface{}, candidate string) bool {
	for _, s := range toStringSet(criterion) {
		if s == candidate {
			return true
		}
	}
	return false
}

func intersects(required, have []string) bool {
	for _, r := range required {
		for _, h := range have {
			if r == h {
				return true
			}
		}
	}
	return false
}

func toStringSet(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
