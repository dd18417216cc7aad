package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalhq/vorpal/internal/auth"
	"github.com/vorpalhq/vorpal/internal/ledger"
	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/policy"
	"github.com/vorpalhq/vorpal/internal/store"
)

type fixture struct {
	svc    *Service
	store  *store.MemoryStore
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	led := ledger.New(ledger.NewMemoryStore(), ledger.Config{}, nil, nil)
	eng := policy.NewEngine(st, policy.NewBasicEvaluator(), nil, nil)
	return &fixture{
		svc:    New(st, led, eng, nil),
		store:  st,
		ledger: led,
	}
}

func actorCtx() context.Context {
	return auth.WithActor(context.Background(), models.Actor{
		ID:   "alice",
		Type: models.ActorTypeUser,
	})
}

func draftSystem() *models.AISystem {
	return &models.AISystem{
		Name:     "fraud-scorer",
		Type:     models.SystemTypeModel,
		RiskTier: models.RiskTierHigh,
		Tags:     []string{"finance"},
	}
}

func (f *fixture) auditEvents(t *testing.T, eventType string) []models.AuditEvent {
	t.Helper()
	events, _, err := f.ledger.List(context.Background(), ledger.Filter{EventType: eventType})
	require.NoError(t, err)
	return events
}

func TestCreateSystemEmitsAuditEvent(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateSystem(actorCtx(), draftSystem())
	require.NoError(t, err)
	assert.Equal(t, models.SystemStatusDraft, created.Status, "new systems default to draft")

	events := f.auditEvents(t, "system.created")
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "alice", ev.Actor.ID)
	assert.Equal(t, "create", ev.Action)
	require.NotNil(t, ev.SystemID)
	assert.Equal(t, created.ID, *ev.SystemID)
	assert.NotEmpty(t, ev.EventHash)
}

func TestCreateSystemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	cases := map[string]*models.AISystem{
		"missing name": {Type: models.SystemTypeModel, RiskTier: models.RiskTierHigh},
		"bad type":     {Name: "x", Type: "toaster", RiskTier: models.RiskTierHigh},
		"bad tier":     {Name: "x", Type: models.SystemTypeModel, RiskTier: "cosmic"},
		"autonomy out of range": {
			Name: "x", Type: models.SystemTypeModel,
			RiskTier: models.RiskTierHigh, AutonomyLevel: intPtr(9),
		},
	}
	for name, sys := range cases {
		_, err := f.svc.CreateSystem(ctx, sys)
		assert.ErrorIs(t, err, ErrValidation, name)
	}

	events := f.auditEvents(t, "system.created")
	assert.Empty(t, events, "rejected creates leave no audit trace")
}

func intPtr(v int) *int { return &v }

func TestUpdateSystemBlockedByPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	created, err := f.svc.CreateSystem(ctx, draftSystem())
	require.NoError(t, err)

	_, err = f.svc.CreatePolicy(ctx, &models.Policy{
		Name:            "freeze-high-risk-deploys",
		Enabled:         true,
		MatchCriteria:   models.MatchCriteria{"risk_tier": "high", "action": "deploy"},
		Rules:           []models.Rule{{Name: "freeze", Condition: "false", Message: "high risk deploys are frozen"}},
		DefaultSeverity: models.SeverityError,
	})
	require.NoError(t, err)

	deployed := models.SystemStatusDeployed
	_, err = f.svc.UpdateSystem(ctx, created.ID, store.SystemUpdate{Status: &deployed})
	require.Error(t, err)

	var blocked *PolicyBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.False(t, blocked.Result.Allowed)
	assert.Contains(t, blocked.Result.BlockingFailures, "high risk deploys are frozen")

	// the mutation must not have happened
	current, err := f.svc.GetSystem(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SystemStatusDraft, current.Status)

	// but the decision itself is on the record
	decisions := f.auditEvents(t, "policy.evaluated")
	require.NotEmpty(t, decisions)
	assert.Equal(t, false, decisions[len(decisions)-1].Details["allowed"])

	// and no system.updated event was written
	assert.Empty(t, f.auditEvents(t, "system.updated"))
}

func TestUpdateSystemDeployAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	created, err := f.svc.CreateSystem(ctx, draftSystem())
	require.NoError(t, err)

	deployed := models.SystemStatusDeployed
	updated, err := f.svc.UpdateSystem(ctx, created.ID, store.SystemUpdate{Status: &deployed})
	require.NoError(t, err)
	assert.Equal(t, models.SystemStatusDeployed, updated.Status)

	events := f.auditEvents(t, "system.updated")
	require.Len(t, events, 1)
	assert.Equal(t, "deploy", events[0].Action, "status transition to deployed audits as deploy")
	assert.Equal(t, "draft", events[0].Details["previous_status"])
}

func TestDeleteSystemGatedAndAudited(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	created, err := f.svc.CreateSystem(ctx, draftSystem())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSystem(ctx, created.ID))
	_, err = f.svc.GetSystem(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	events := f.auditEvents(t, "system.deleted")
	require.Len(t, events, 1)
	assert.Equal(t, "fraud-scorer", events[0].Details["name"])
}

func TestEvaluateActionReturnsBlockedDecisionWithoutError(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	created, err := f.svc.CreateSystem(ctx, draftSystem())
	require.NoError(t, err)

	_, err = f.svc.CreatePolicy(ctx, &models.Policy{
		Name:            "block-everything",
		Enabled:         true,
		Rules:           []models.Rule{{Name: "no", Condition: "false", Message: "nope"}},
		DefaultSeverity: models.SeverityError,
	})
	require.NoError(t, err)

	result, err := f.svc.EvaluateAction(ctx, created.ID, "deploy", nil)
	require.NoError(t, err, "a blocked evaluation is a result, not an error")
	assert.False(t, result.Allowed)

	decisions := f.auditEvents(t, "policy.evaluated")
	require.NotEmpty(t, decisions)
}

func TestEvaluateActionUnknownSystem(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EvaluateAction(actorCtx(), "missing", "deploy", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestControlIDValidation(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	_, err := f.svc.CreateControl(ctx, &models.Control{
		ID:       "not-a-control-id",
		Name:     "x",
		Category: models.ControlCategorySecurity,
	})
	assert.ErrorIs(t, err, ErrValidation)

	created, err := f.svc.CreateControl(ctx, &models.Control{
		ID:       "CTRL-SECURITY-001",
		Name:     "access review",
		Category: models.ControlCategorySecurity,
	})
	require.NoError(t, err)
	assert.Equal(t, "CTRL-SECURITY-001", created.ID)

	events := f.auditEvents(t, "control.created")
	require.Len(t, events, 1)
	assert.Nil(t, events[0].SystemID, "control lifecycle audits on the platform chain")
}

func TestAssignControlAuditsOnSystemChain(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	sys, err := f.svc.CreateSystem(ctx, draftSystem())
	require.NoError(t, err)
	_, err = f.svc.CreateControl(ctx, &models.Control{
		ID:       "CTRL-BIAS-001",
		Name:     "bias eval",
		Category: models.ControlCategoryBias,
	})
	require.NoError(t, err)

	_, err = f.svc.AssignControl(ctx, &models.SystemControl{
		SystemID:  sys.ID,
		ControlID: "CTRL-BIAS-001",
	})
	require.NoError(t, err)

	events := f.auditEvents(t, "control.assigned")
	require.Len(t, events, 1)
	require.NotNil(t, events[0].SystemID)
	assert.Equal(t, sys.ID, *events[0].SystemID)
}

func TestSeedPolicyUpsertsAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	first, err := f.svc.SeedPolicy(ctx, &models.Policy{
		Name:     "pack-policy",
		Enabled:  true,
		PackName: "baseline",
		Rules:    []models.Rule{{Name: "r", Condition: "true"}},
	})
	require.NoError(t, err)

	second, err := f.svc.SeedPolicy(ctx, &models.Policy{
		Name:     "pack-policy",
		Enabled:  false,
		PackName: "baseline",
		Rules:    []models.Rule{{Name: "r", Condition: "false"}},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "seeding twice replaces in place")

	events := f.auditEvents(t, "policy.seeded")
	assert.Len(t, events, 2)
	assert.Equal(t, "baseline", events[0].Details["pack"])
}

func TestVerifyChainThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := actorCtx()

	sys, err := f.svc.CreateSystem(ctx, draftSystem())
	require.NoError(t, err)

	report, err := f.svc.VerifyChain(ctx, &sys.ID, nil, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, 1, report.TotalEvents)

	all, err := f.svc.VerifyChain(ctx, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, all.Verified)
}
