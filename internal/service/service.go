// Package service orchestrates the registry: entity persistence, policy
// gating of state-changing actions, and audit emission for every
// governance-relevant operation.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vorpalhq/vorpal/internal/auth"
	"github.com/vorpalhq/vorpal/internal/ledger"
	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/policy"
	"github.com/vorpalhq/vorpal/internal/store"
)

// PolicyBlockedError carries the full evaluation result of a blocked
// action so callers can render the specific blocking messages, never just
// a boolean.
type PolicyBlockedError struct {
	Result *models.EvaluationResult
}

func (e *PolicyBlockedError) Error() string {
	return fmt.Sprintf("action %q blocked by policy: %s",
		e.Result.Action, strings.Join(e.Result.BlockingFailures, "; "))
}

// Service wires the entity store, the policy engine, and the audit ledger.
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	engine *policy.Engine
	logger *slog.Logger
}

func New(st store.Store, l *ledger.Ledger, engine *policy.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		ledger: l,
		engine: engine,
		logger: logger.With("component", "service"),
	}
}

// emit appends one audit event for a completed operation. The mutation has
// already been persisted; an append failure is logged loudly but does not
// roll the operation back.
func (s *Service) emit(ctx context.Context, systemID *string, eventType, action string, resource *models.Resource, details map[string]interface{}) {
	actor := auth.ActorFromContext(ctx)
	meta := auth.MetaFromContext(ctx)
	_, err := s.ledger.Append(ctx, &models.AuditEvent{
		SystemID:  systemID,
		EventType: eventType,
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Details:   details,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	})
	if err != nil {
		s.logger.Error("audit emission failed",
			"event_type", eventType, "action", action, "error", err)
	}
}

// authorize evaluates the policy set for a gated action and converts a
// blocked outcome into a PolicyBlockedError. The evaluation itself is
// recorded as a policy.evaluated event either way.
func (s *Service) authorize(ctx context.Context, system *models.AISystem, action string, evalContext map[string]interface{}) (*models.EvaluationResult, error) {
	result, err := s.engine.EvaluateAction(ctx, system, action, evalContext)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, &system.ID, "policy.evaluated", action,
		&models.Resource{Type: "system", ID: system.ID},
		map[string]interface{}{
			"allowed":            result.Allowed,
			"policies_evaluated": result.PoliciesEvaluated,
			"policies_failed":    result.PoliciesFailed,
			"blocking_failures":  result.BlockingFailures,
			"warnings":           result.Warnings,
		})
	if !result.Allowed {
		return result, &PolicyBlockedError{Result: result}
	}
	return result, nil
}

// Ping reports readiness of both backing stores.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("entity store: %w", err)
	}
	if err := s.ledger.Ping(ctx); err != nil {
		return fmt.Errorf("ledger store: %w", err)
	}
	return nil
}

// --- systems ---

func (s *Service) CreateSystem(ctx context.Context, sys *models.AISystem) (*models.AISystem, error) {
	if sys.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if !sys.Type.Valid() {
		return nil, fmt.Errorf("%w: invalid system type %q", ErrValidation, sys.Type)
	}
	if sys.Status == "" {
		sys.Status = models.SystemStatusDraft
	}
	if !sys.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, sys.Status)
	}
	if !sys.RiskTier.Valid() {
		return nil, fmt.Errorf("%w: invalid risk tier %q", ErrValidation, sys.RiskTier)
	}
	if sys.AutonomyLevel != nil && (*sys.AutonomyLevel < 1 || *sys.AutonomyLevel > 5) {
		return nil, fmt.Errorf("%w: autonomy_level must be 1..5", ErrValidation)
	}

	created, err := s.store.CreateSystem(ctx, sys)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, &created.ID, "system.created", "create",
		&models.Resource{Type: "system", ID: created.ID},
		map[string]interface{}{
			"name":      created.Name,
			"type":      string(created.Type),
			"risk_tier": string(created.RiskTier),
		})
	return created, nil
}

func (s *Service) GetSystem(ctx context.Context, id string) (*models.AISystem, error) {
	return s.store.GetSystem(ctx, id)
}

func (s *Service) ListSystems(ctx context.Context, f store.SystemFilter) ([]models.AISystem, int, error) {
	return s.store.ListSystems(ctx, f)
}

// UpdateSystem is policy gated. A status transition to deployed evaluates
// as the "deploy" action; everything else as "update".
func (s *Service) UpdateSystem(ctx context.Context, id string, upd store.SystemUpdate) (*models.AISystem, error) {
	current, err := s.store.GetSystem(ctx, id)
	if err != nil {
		return nil, err
	}

	action := "update"
	if upd.Status != nil && *upd.Status == models.SystemStatusDeployed && current.Status != models.SystemStatusDeployed {
		action = "deploy"
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, *upd.Status)
	}
	if upd.RiskTier != nil && !upd.RiskTier.Valid() {
		return nil, fmt.Errorf("%w: invalid risk tier %q", ErrValidation, *upd.RiskTier)
	}
	if _, err := s.authorize(ctx, current, action, nil); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateSystem(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	details := map[string]interface{}{"action": action}
	if upd.Status != nil {
		details["status"] = string(*upd.Status)
		details["previous_status"] = string(current.Status)
	}
	s.emit(ctx, &updated.ID, "system.updated", action,
		&models.Resource{Type: "system", ID: updated.ID}, details)
	return updated, nil
}

// DeleteSystem is policy gated as the "delete" action.
func (s *Service) DeleteSystem(ctx context.Context, id string) error {
	current, err := s.store.GetSystem(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, current, "delete", nil); err != nil {
		return err
	}
	if err := s.store.DeleteSystem(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, &id, "system.deleted", "delete",
		&models.Resource{Type: "system", ID: id},
		map[string]interface{}{"name": current.Name})
	return nil
}

// --- evaluation ---

// EvaluateAction runs the policy engine without performing any mutation,
// recording the decision in the ledger. A blocked outcome is a normal
// result here, not an error.
func (s *Service) EvaluateAction(ctx context.Context, systemID, action string, evalContext map[string]interface{}) (*models.EvaluationResult, error) {
	system, err := s.store.GetSystem(ctx, systemID)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.EvaluateAction(ctx, system, action, evalContext)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, &system.ID, "policy.evaluated", action,
		&models.Resource{Type: "system", ID: system.ID},
		map[string]interface{}{
			"allowed":            result.Allowed,
			"policies_evaluated": result.PoliciesEvaluated,
			"policies_failed":    result.PoliciesFailed,
			"blocking_failures":  result.BlockingFailures,
			"warnings":           result.Warnings,
		})
	return result, nil
}
