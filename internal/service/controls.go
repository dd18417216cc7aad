package service

import (
	"context"
	"fmt"
	"regexp"

	"github.com/vorpalhq/vorpal/internal/models"
	"github.com/vorpalhq/vorpal/internal/store"
)

// control ids are administrator assigned, e.g. CTRL-SECURITY-001
var controlIDPattern = regexp.MustCompile(`^CTRL-[A-Z]+-[0-9]+$`)

func (s *Service) CreateControl(ctx context.Context, c *models.Control) (*models.Control, error) {
	if !controlIDPattern.MatchString(c.ID) {
		return nil, fmt.Errorf("%w: control id must match CTRL-{CATEGORY}-{NUMBER}", ErrValidation)
	}
	if c.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if !c.Category.Valid() {
		return nil, fmt.Errorf("%w: invalid category %q", ErrValidation, c.Category)
	}
	for _, tier := range c.AppliesToTiers {
		if !tier.Valid() {
			return nil, fmt.Errorf("%w: invalid risk tier %q", ErrValidation, tier)
		}
	}

	created, err := s.store.CreateControl(ctx, c)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, nil, "control.created", "create",
		&models.Resource{Type: "control", ID: created.ID},
		map[string]interface{}{
			"name":     created.Name,
			"category": string(created.Category),
		})
	return created, nil
}

func (s *Service) GetControl(ctx context.Context, id string) (*models.Control, error) {
	return s.store.GetControl(ctx, id)
}

func (s *Service) ListControls(ctx context.Context, f store.ControlFilter) ([]models.Control, int, error) {
	return s.store.ListControls(ctx, f)
}

func (s *Service) UpdateControl(ctx context.Context, id string, upd store.ControlUpdate) (*models.Control, error) {
	if upd.Category != nil && !upd.Category.Valid() {
		return nil, fmt.Errorf("%w: invalid category %q", ErrValidation, *upd.Category)
	}
	updated, err := s.store.UpdateControl(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, nil, "control.updated", "update",
		&models.Resource{Type: "control", ID: updated.ID}, nil)
	return updated, nil
}

func (s *Service) DeleteControl(ctx context.Context, id string) error {
	if err := s.store.DeleteControl(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, nil, "control.deleted", "delete",
		&models.Resource{Type: "control", ID: id}, nil)
	return nil
}

// AssignControl attaches a control to a system. The pair is unique; a
// duplicate assignment surfaces as Conflict.
func (s *Service) AssignControl(ctx context.Context, sc *models.SystemControl) (*models.SystemControl, error) {
	if sc.Status != "" && !sc.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid control status %q", ErrValidation, sc.Status)
	}
	created, err := s.store.AssignControl(ctx, sc)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, &created.SystemID, "control.assigned", "assign",
		&models.Resource{Type: "control", ID: created.ControlID},
		map[string]interface{}{"status": string(created.Status)})
	return created, nil
}

func (s *Service) ListSystemControls(ctx context.Context, systemID string) ([]models.SystemControl, error) {
	return s.store.ListSystemControls(ctx, systemID)
}

func (s *Service) UpdateSystemControl(ctx context.Context, systemID, controlID string, upd store.SystemControlUpdate) (*models.SystemControl, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid control status %q", ErrValidation, *upd.Status)
	}
	updated, err := s.store.UpdateSystemControl(ctx, systemID, controlID, upd)
	if err != nil {
		return nil, err
	}
	details := map[string]interface{}{}
	if upd.Status != nil {
		details["status"] = string(*upd.Status)
	}
	s.emit(ctx, &systemID, "control.status_updated", "update",
		&models.Resource{Type: "control", ID: controlID}, details)
	return updated, nil
}

func (s *Service) UnassignControl(ctx context.Context, systemID, controlID string) error {
	if err := s.store.UnassignControl(ctx, systemID, controlID); err != nil {
		return err
	}
	s.emit(ctx, &systemID, "control.unassigned", "unassign",
		&models.Resource{Type: "control", ID: controlID}, nil)
	return nil
}
