package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalhq/vorpal/internal/models"
)

func evalSystem() *models.AISystem {
	level := 3
	return &models.AISystem{
		ID:            "sys-1",
		Name:          "triage-agent",
		Type:          models.SystemTypeAgent,
		Status:        models.SystemStatusApproved,
		RiskTier:      models.RiskTierHigh,
		AutonomyLevel: &level,
		OwnerID:       "alice",
	}
}

func TestEvaluateLiterals(t *testing.T) {
	e := NewBasicEvaluator()

	passed, err := e.Evaluate("true", evalSystem(), nil)
	require.NoError(t, err)
	assert.True(t, passed)

	passed, err = e.Evaluate("", evalSystem(), nil)
	require.NoError(t, err)
	assert.True(t, passed, "empty condition always passes")

	passed, err = e.Evaluate("false", evalSystem(), nil)
	require.NoError(t, err)
	assert.False(t, passed)
}

func TestEvaluateComparisons(t *testing.T) {
	e := NewBasicEvaluator()
	sys := evalSystem()

	cases := []struct {
		condition string
		want      bool
	}{
		{"system.autonomy_level <= 3", true},
		{"system.autonomy_level <= 2", false},
		{"system.autonomy_level < 4", true},
		{"system.autonomy_level >= 3", true},
		{"system.autonomy_level > 3", false},
		{"system.autonomy_level == 3", true},
		{"system.autonomy_level != 3", false},
		{"system.risk_tier == 'high'", true},
		{"system.risk_tier != \"prohibited\"", true},
		{"system.status == approved", true},
		{"system.owner_id == alice", true},
		{"system.type == agent", true},
	}
	for _, tc := range cases {
		passed, err := e.Evaluate(tc.condition, sys, nil)
		require.NoError(t, err, "condition %q", tc.condition)
		assert.Equal(t, tc.want, passed, "condition %q", tc.condition)
	}
}

func TestEvaluateContextPaths(t *testing.T) {
	e := NewBasicEvaluator()
	ctx := map[string]interface{}{
		"environment": "production",
		"replicas":    float64(4),
	}

	passed, err := e.Evaluate("context.environment == production", evalSystem(), ctx)
	require.NoError(t, err)
	assert.True(t, passed)

	passed, err = e.Evaluate("context.replicas <= 10", evalSystem(), ctx)
	require.NoError(t, err)
	assert.True(t, passed)
}

func TestEvaluateFaults(t *testing.T) {
	e := NewBasicEvaluator()
	sys := evalSystem()

	faulting := []string{
		"gibberish with no operator",
		"system.autonomy_level <=",
		"== 3",
		"system.no_such_field == 1",
		"context.absent == 1",
		"unqualified_path == 1",
		"system.name < 3", // ordering needs numerics
	}
	for _, condition := range faulting {
		_, err := e.Evaluate(condition, sys, nil)
		require.Error(t, err, "condition %q", condition)
		var fault *EvaluatorFault
		assert.True(t, errors.As(err, &fault), "condition %q must fault, got %v", condition, err)
	}
}

func TestEvaluateFaultsOnMissingAutonomyLevel(t *testing.T) {
	e := NewBasicEvaluator()
	sys := evalSystem()
	sys.AutonomyLevel = nil

	_, err := e.Evaluate("system.autonomy_level <= 3", sys, nil)
	var fault *EvaluatorFault
	require.True(t, errors.As(err, &fault))
	assert.Contains(t, fault.Reason, "autonomy_level")
}

func TestEvaluateOperatorPrecedence(t *testing.T) {
	// "<=" must win over "<" when both could match the text.
	e := NewBasicEvaluator()
	passed, err := e.Evaluate("system.autonomy_level <= 3", evalSystem(), nil)
	require.NoError(t, err)
	assert.True(t, passed)
}

func TestEvaluateOperatorInsideQuotedLiteral(t *testing.T) {
	// Operator characters inside a quoted literal belong to the literal;
	// the comparison splits on the unquoted operator.
	e := NewBasicEvaluator()

	ctx := map[string]interface{}{"note": "risk<=high"}
	passed, err := e.Evaluate(`context.note == "risk<=high"`, evalSystem(), ctx)
	require.NoError(t, err)
	assert.True(t, passed)

	passed, err = e.Evaluate("system.name != 'a<b'", evalSystem(), nil)
	require.NoError(t, err)
	assert.True(t, passed)

	passed, err = e.Evaluate("system.name == 'a>=b'", evalSystem(), nil)
	require.NoError(t, err)
	assert.False(t, passed)
}
