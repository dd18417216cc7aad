package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vorpalhq/vorpal/internal/models"
)

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu             sync.RWMutex
	systems        map[string]models.AISystem
	controls       map[string]models.Control
	systemControls map[string]models.SystemControl // key: systemID + "\x00" + controlID
	policies       map[string]models.Policy
	now            func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		systems:        map[string]models.AISystem{},
		controls:       map[string]models.Control{},
		systemControls: map[string]models.SystemControl{},
		policies:       map[string]models.Policy{},
		now:            time.Now,
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func scKey(systemID, controlID string) string {
	return systemID + "\x00" + controlID
}

// --- systems ---

func (m *MemoryStore) CreateSystem(_ context.Context, sys *models.AISystem) (*models.AISystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *sys
	if created.ID == "" {
		created.ID = models.NewID()
	}
	if _, ok := m.systems[created.ID]; ok {
		return nil, models.ErrConflict
	}
	now := m.now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.systems[created.ID] = created
	out := created
	return &out, nil
}

func (m *MemoryStore) GetSystem(_ context.Context, id string) (*models.AISystem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sys, ok := m.systems[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &sys, nil
}

func (m *MemoryStore) ListSystems(_ context.Context, f SystemFilter) ([]models.AISystem, int, error) {
	m.mu.RLock()
	matched := make([]models.AISystem, 0)
	for _, sys := range m.systems {
		if f.Status != "" && sys.Status != f.Status {
			continue
		}
		if f.RiskTier != "" && sys.RiskTier != f.RiskTier {
			continue
		}
		if f.Type != "" && sys.Type != f.Type {
			continue
		}
		if f.OwnerID != "" && sys.OwnerID != f.OwnerID {
			continue
		}
		if f.Tag != "" && !sys.HasTag(f.Tag) {
			continue
		}
		matched = append(matched, sys)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	return paginate(matched, f.Offset, f.Limit), total, nil
}

func (m *MemoryStore) UpdateSystem(_ context.Context, id string, upd SystemUpdate) (*models.AISystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sys, ok := m.systems[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if upd.Name != nil {
		sys.Name = *upd.Name
	}
	if upd.Description != nil {
		sys.Description = *upd.Description
	}
	if upd.Status != nil {
		sys.Status = *upd.Status
	}
	if upd.RiskTier != nil {
		sys.RiskTier = *upd.RiskTier
	}
	if upd.AutonomyLevel != nil {
		level := *upd.AutonomyLevel
		sys.AutonomyLevel = &level
	}
	if upd.OwnerID != nil {
		sys.OwnerID = *upd.OwnerID
	}
	if upd.TeamID != nil {
		sys.TeamID = *upd.TeamID
	}
	if upd.Version != nil {
		sys.Version = *upd.Version
	}
	if upd.Metadata != nil {
		sys.Metadata = upd.Metadata
	}
	if upd.Documentation != nil {
		sys.Documentation = upd.Documentation
	}
	if upd.Tags != nil {
		sys.Tags = append([]string(nil), upd.Tags...)
	}
	sys.UpdatedAt = m.now().UTC()
	m.systems[id] = sys
	out := sys
	return &out, nil
}

func (m *MemoryStore) DeleteSystem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.systems[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.systems, id)
	for key := range m.systemControls {
		if strings.HasPrefix(key, id+"\x00") {
			delete(m.systemControls, key)
		}
	}
	return nil
}

// --- controls ---

func (m *MemoryStore) CreateControl(_ context.Context, c *models.Control) (*models.Control, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.controls[c.ID]; ok {
		return nil, models.ErrConflict
	}
	created := *c
	now := m.now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.controls[created.ID] = created
	out := created
	return &out, nil
}

func (m *MemoryStore) GetControl(_ context.Context, id string) (*models.Control, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controls[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListControls(_ context.Context, f ControlFilter) ([]models.Control, int, error) {
	m.mu.RLock()
	matched := make([]models.Control, 0)
	for _, c := range m.controls {
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		if f.Regulation != "" && c.Regulation != f.Regulation {
			continue
		}
		if f.Mandatory != nil && c.Mandatory != *f.Mandatory {
			continue
		}
		matched = append(matched, c)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	return paginate(matched, f.Offset, f.Limit), total, nil
}

func (m *MemoryStore) UpdateControl(_ context.Context, id string, upd ControlUpdate) (*models.Control, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controls[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	if upd.Category != nil {
		c.Category = *upd.Category
	}
	if upd.Regulation != nil {
		c.Regulation = *upd.Regulation
	}
	if upd.RequirementText != nil {
		c.RequirementText = *upd.RequirementText
	}
	if upd.TestGuidance != nil {
		c.TestGuidance = *upd.TestGuidance
	}
	if upd.Mandatory != nil {
		c.Mandatory = *upd.Mandatory
	}
	if upd.AppliesToTiers != nil {
		c.AppliesToTiers = append([]models.RiskTier(nil), upd.AppliesToTiers...)
	}
	c.UpdatedAt = m.now().UTC()
	m.controls[id] = c
	out := c
	return &out, nil
}

func (m *MemoryStore) DeleteControl(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.controls[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.controls, id)
	for key := range m.systemControls {
		if strings.HasSuffix(key, "\x00"+id) {
			delete(m.systemControls, key)
		}
	}
	return nil
}

// --- system controls ---

func (m *MemoryStore) AssignControl(_ context.Context, sc *models.SystemControl) (*models.SystemControl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.systems[sc.SystemID]; !ok {
		return nil, models.ErrNotFound
	}
	if _, ok := m.controls[sc.ControlID]; !ok {
		return nil, models.ErrNotFound
	}
	key := scKey(sc.SystemID, sc.ControlID)
	if _, ok := m.systemControls[key]; ok {
		return nil, models.ErrConflict
	}
	created := *sc
	if created.Status == "" {
		created.Status = models.ControlStatusPending
	}
	now := m.now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.systemControls[key] = created
	out := created
	return &out, nil
}

func (m *MemoryStore) ListSystemControls(_ context.Context, systemID string) ([]models.SystemControl, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.systems[systemID]; !ok {
		return nil, models.ErrNotFound
	}
	out := make([]models.SystemControl, 0)
	for _, sc := range m.systemControls {
		if sc.SystemID == systemID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ControlID < out[j].ControlID })
	return out, nil
}

func (m *MemoryStore) UpdateSystemControl(_ context.Context, systemID, controlID string, upd SystemControlUpdate) (*models.SystemControl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scKey(systemID, controlID)
	sc, ok := m.systemControls[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	if upd.Status != nil {
		sc.Status = *upd.Status
	}
	if upd.EvidenceRequired != nil {
		sc.EvidenceRequired = *upd.EvidenceRequired
	}
	if upd.Notes != nil {
		sc.Notes = *upd.Notes
	}
	if upd.LastUpdatedBy != nil {
		sc.LastUpdatedBy = *upd.LastUpdatedBy
	}
	sc.UpdatedAt = m.now().UTC()
	m.systemControls[key] = sc
	out := sc
	return &out, nil
}

func (m *MemoryStore) UnassignControl(_ context.Context, systemID, controlID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scKey(systemID, controlID)
	if _, ok := m.systemControls[key]; !ok {
		return models.ErrNotFound
	}
	delete(m.systemControls, key)
	return nil
}

// --- policies ---

func (m *MemoryStore) CreatePolicy(_ context.Context, p *models.Policy) (*models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.policies {
		if existing.Name == p.Name {
			return nil, models.ErrConflict
		}
	}
	created := clonePolicy(p)
	if created.ID == "" {
		created.ID = models.NewID()
	}
	now := m.now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.policies[created.ID] = created
	out := created
	return &out, nil
}

func (m *MemoryStore) GetPolicy(_ context.Context, id string) (*models.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := clonePolicy(&p)
	return &out, nil
}

func (m *MemoryStore) GetPolicyByName(_ context.Context, name string) (*models.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.policies {
		if p.Name == name {
			out := clonePolicy(&p)
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryStore) ListPolicies(_ context.Context, f PolicyFilter) ([]models.Policy, int, error) {
	m.mu.RLock()
	matched := make([]models.Policy, 0)
	for _, p := range m.policies {
		if f.Enabled != nil && p.Enabled != *f.Enabled {
			continue
		}
		if f.PackName != "" && p.PackName != f.PackName {
			continue
		}
		matched = append(matched, clonePolicy(&p))
	}
	m.mu.RUnlock()

	sortPolicies(matched)
	total := len(matched)
	return paginate(matched, f.Offset, f.Limit), total, nil
}

func (m *MemoryStore) ListEnabledPolicies(ctx context.Context) ([]models.Policy, error) {
	enabled := true
	policies, _, err := m.ListPolicies(ctx, PolicyFilter{Enabled: &enabled})
	return policies, err
}

func (m *MemoryStore) UpdatePolicy(_ context.Context, id string, upd PolicyUpdate) (*models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	applyPolicyUpdate(&p, upd)
	p.UpdatedAt = m.now().UTC()
	m.policies[id] = p
	out := clonePolicy(&p)
	return &out, nil
}

func (m *MemoryStore) UpsertPolicyByName(_ context.Context, p *models.Policy) (*models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	for id, existing := range m.policies {
		if existing.Name == p.Name {
			replaced := clonePolicy(p)
			replaced.ID = id
			replaced.CreatedAt = existing.CreatedAt
			replaced.UpdatedAt = now
			m.policies[id] = replaced
			out := replaced
			return &out, nil
		}
	}
	created := clonePolicy(p)
	if created.ID == "" {
		created.ID = models.NewID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	m.policies[created.ID] = created
	out := created
	return &out, nil
}

func (m *MemoryStore) DeletePolicy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.policies, id)
	return nil
}

func applyPolicyUpdate(p *models.Policy, upd PolicyUpdate) {
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.Version != nil {
		p.Version = *upd.Version
	}
	if upd.Enabled != nil {
		p.Enabled = *upd.Enabled
	}
	if upd.MatchCriteria != nil {
		p.MatchCriteria = upd.MatchCriteria
	}
	if upd.Rules != nil {
		p.Rules = append([]models.Rule(nil), upd.Rules...)
	}
	if upd.DefaultSeverity != nil {
		p.DefaultSeverity = *upd.DefaultSeverity
	}
	if upd.Regulation != nil {
		p.Regulation = *upd.Regulation
	}
	if upd.Metadata != nil {
		p.Metadata = upd.Metadata
	}
}

// clonePolicy copies the rule slice so callers never share backing arrays
// with stored policies.
func clonePolicy(p *models.Policy) models.Policy {
	out := *p
	out.Rules = append([]models.Rule(nil), p.Rules...)
	return out
}

func sortPolicies(policies []models.Policy) {
	sort.Slice(policies, func(i, j int) bool {
		if !policies[i].CreatedAt.Equal(policies[j].CreatedAt) {
			return policies[i].CreatedAt.Before(policies[j].CreatedAt)
		}
		return policies[i].ID < policies[j].ID
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
