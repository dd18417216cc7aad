package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vorpalhq/vorpal/internal/models"
)

func matchSystem() *models.AISystem {
	return &models.AISystem{
		ID:       "sys-1",
		Name:     "fraud-scorer",
		Type:     models.SystemTypeModel,
		RiskTier: models.RiskTierHigh,
		Tags:     []string{"finance", "customer-facing"},
	}
}

func TestMatchesEmptyCriteriaMatchesEverything(t *testing.T) {
	assert.True(t, Matches(models.MatchCriteria{}, matchSystem(), "deploy"))
	assert.True(t, Matches(nil, matchSystem(), "anything"))
}

func TestMatchesRiskTier(t *testing.T) {
	sys := matchSystem()
	assert.True(t, Matches(models.MatchCriteria{"risk_tier": "high"}, sys, "deploy"))
	assert.False(t, Matches(models.MatchCriteria{"risk_tier": "minimal"}, sys, "deploy"))
	// list form
	assert.True(t, Matches(models.MatchCriteria{"risk_tier": []interface{}{"high", "prohibited"}}, sys, "deploy"))
	assert.False(t, Matches(models.MatchCriteria{"risk_tier": []interface{}{"limited", "minimal"}}, sys, "deploy"))
}

func TestMatchesAction(t *testing.T) {
	sys := matchSystem()
	assert.True(t, Matches(models.MatchCriteria{"action": "deploy"}, sys, "deploy"))
	assert.False(t, Matches(models.MatchCriteria{"action": "deploy"}, sys, "delete"))
	assert.True(t, Matches(models.MatchCriteria{"action": []string{"deploy", "delete"}}, sys, "delete"))
}

func TestMatchesType(t *testing.T) {
	sys := matchSystem()
	assert.True(t, Matches(models.MatchCriteria{"type": "model"}, sys, "deploy"))
	assert.False(t, Matches(models.MatchCriteria{"type": "agent"}, sys, "deploy"))
}

func TestMatchesTagsFlatForm(t *testing.T) {
	sys := matchSystem()
	assert.True(t, Matches(models.MatchCriteria{"tags.contains": []interface{}{"finance"}}, sys, "deploy"))
	assert.False(t, Matches(models.MatchCriteria{"tags.contains": []interface{}{"medical"}}, sys, "deploy"))
}

func TestMatchesTagsNestedForm(t *testing.T) {
	sys := matchSystem()
	nested := models.MatchCriteria{
		"tags": map[string]interface{}{"contains": []interface{}{"medical", "customer-facing"}},
	}
	assert.True(t, Matches(nested, sys, "deploy"), "one shared tag suffices")

	miss := models.MatchCriteria{
		"tags": map[string]interface{}{"contains": []interface{}{"medical"}},
	}
	assert.False(t, Matches(miss, sys, "deploy"))
}

func TestMatchesAllCriteriaMustHold(t *testing.T) {
	sys := matchSystem()
	criteria := models.MatchCriteria{
		"risk_tier": "high",
		"action":    "deploy",
		"type":      "model",
	}
	assert.True(t, Matches(criteria, sys, "deploy"))

	criteria["action"] = "delete"
	assert.False(t, Matches(criteria, sys, "deploy"), "one failing key fails the whole match")
}

func TestMatchesIgnoresUnknownKeys(t *testing.T) {
	criteria := models.MatchCriteria{"flux_capacitance": "1.21"}
	assert.True(t, Matches(criteria, matchSystem(), "deploy"))
}
