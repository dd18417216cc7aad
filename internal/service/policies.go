package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vorpalhq/vorpal/internal/ledger"
	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/store"
)

func (s *Service) CreatePolicy(ctx context.Context, p *models.Policy) (*models.Policy, error) {
	if err := validatePolicy(p.Name, p.DefaultSeverity, p.Rules); err != nil {
		return nil, err
	}
	created, err := s.store.CreatePolicy(ctx, p)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, nil, "policy.created", "create",
		&models.Resource{Type: "policy", ID: created.ID},
		map[string]interface{}{
			"name":    created.Name,
			"enabled": created.Enabled,
			"rules":   len(created.Rules),
		})
	return created, nil
}

func (s *Service) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	return s.store.GetPolicy(ctx, id)
}

func (s *Service) ListPolicies(ctx context.Context, f store.PolicyFilter) ([]models.Policy, int, error) {
	return s.store.ListPolicies(ctx, f)
}

func (s *Service) UpdatePolicy(ctx context.Context, id string, upd store.PolicyUpdate) (*models.Policy, error) {
	if upd.DefaultSeverity != nil && !upd.DefaultSeverity.Valid() {
		return nil, fmt.Errorf("%w: invalid default severity %q", ErrValidation, *upd.DefaultSeverity)
	}
	if upd.Rules != nil {
		if err := validateRules(upd.Rules); err != nil {
			return nil, err
		}
	}
	updated, err := s.store.UpdatePolicy(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	details := map[string]interface{}{"name": updated.Name}
	if upd.Enabled != nil {
		details["enabled"] = *upd.Enabled
	}
	s.emit(ctx, nil, "policy.updated", "update",
		&models.Resource{Type: "policy", ID: updated.ID}, details)
	return updated, nil
}

func (s *Service) DeletePolicy(ctx context.Context, id string) error {
	current, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePolicy(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, nil, "policy.deleted", "delete",
		&models.Resource{Type: "policy", ID: id},
		map[string]interface{}{"name": current.Name})
	return nil
}

// SeedPolicy upserts a pack-loaded policy by name, emitting a single
// policy.seeded event.
func (s *Service) SeedPolicy(ctx context.Context, p *models.Policy) (*models.Policy, error) {
	if err := validatePolicy(p.Name, p.DefaultSeverity, p.Rules); err != nil {
		return nil, err
	}
	seeded, err := s.store.UpsertPolicyByName(ctx, p)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, nil, "policy.seeded", "seed",
		&models.Resource{Type: "policy", ID: seeded.ID},
		map[string]interface{}{
			"name": seeded.Name,
			"pack": seeded.PackName,
		})
	return seeded, nil
}

func validatePolicy(name string, sev models.Severity, rules []models.Rule) error {
	if name == "" {
		return fmt.Errorf("%w: policy name required", ErrValidation)
	}
	if sev != "" && !sev.Valid() {
		return fmt.Errorf("%w: invalid default severity %q", ErrValidation, sev)
	}
	return validateRules(rules)
}

func validateRules(rules []models.Rule) error {
	for _, r := range rules {
		if r.Name == "" {
			return fmt.Errorf("%w: rule name required", ErrValidation)
		}
		if r.Severity != "" && !r.Severity.Valid() {
			return fmt.Errorf("%w: invalid severity %q on rule %q", ErrValidation, r.Severity, r.Name)
		}
	}
	return nil
}

// --- audit ---

func (s *Service) GetAuditEvent(ctx context.Context, id string) (*models.AuditEvent, error) {
	return s.ledger.Get(ctx, id)
}

func (s *Service) ListAuditEvents(ctx context.Context, f ledger.Filter) ([]models.AuditEvent, int, error) {
	return s.ledger.List(ctx, f)
}

// VerifyChain verifies one chain scope when systemID is set, otherwise
// every known scope.
func (s *Service) VerifyChain(ctx context.Context, systemID *string, from, to *time.Time) (models.VerificationReport, error) {
	if systemID != nil {
		return s.ledger.VerifyScope(ctx, *systemID, from, to)
	}
	return s.ledger.VerifyAll(ctx, from, to)
}
