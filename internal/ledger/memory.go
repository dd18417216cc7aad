package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/vorpalhq/vorpal/internal/models"
)

// MemoryStore is an in-memory Store used by tests and single-process
// deployments. Events are held in append order; per-scope heads back the
// compare-and-swap append.
type MemoryStore struct {
	mu     sync.RWMutex
	events []models.AuditEvent
	byID   map[string]int
	heads  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]int),
		heads: make(map[string]string),
	}
}

func (s *MemoryStore) Head(_ context.Context, scope string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heads[scope], nil
}

func (s *MemoryStore) Append(_ context.Context, ev *models.AuditEvent, expectedPrev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[ev.ID]; ok {
		return models.ErrConflict
	}
	scope := ev.ChainScope()
	if s.heads[scope] != expectedPrev {
		return ErrChainConflict
	}
	stored := cloneEvent(ev)
	s.byID[ev.ID] = len(s.events)
	s.events = append(s.events, *stored)
	s.heads[scope] = ev.EventHash
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneEvent(&s.events[idx]), nil
}

func (s *MemoryStore) Scan(_ context.Context, f Filter) ([]models.AuditEvent, error) {
	s.mu.RLock()
	matched := make([]models.AuditEvent, 0)
	for i := range s.events {
		if matchesFilter(&s.events[i], f) {
			matched = append(matched, *cloneEvent(&s.events[i]))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if f.Descending {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if f.Descending {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []models.AuditEvent{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.events {
		if matchesFilter(&s.events[i], f) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Scopes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scopes := make([]string, 0, len(s.heads))
	for scope := range s.heads {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func matchesFilter(ev *models.AuditEvent, f Filter) bool {
	if f.Scope != nil && ev.ChainScope() != *f.Scope {
		return false
	}
	if f.EventType != "" && ev.EventType != f.EventType {
		return false
	}
	if f.ActorID != "" && ev.Actor.ID != f.ActorID {
		return false
	}
	if f.Action != "" && ev.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && (ev.Resource == nil || ev.Resource.Type != f.ResourceType) {
		return false
	}
	if f.From != nil && ev.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && ev.Timestamp.After(*f.To) {
		return false
	}
	return true
}

func cloneEvent(ev *models.AuditEvent) *models.AuditEvent {
	out := *ev
	if ev.SystemID != nil {
		id := *ev.SystemID
		out.SystemID = &id
	}
	if ev.Resource != nil {
		r := *ev.Resource
		out.Resource = &r
	}
	if ev.Details != nil {
		details := make(map[string]interface{}, len(ev.Details))
		for k, v := range ev.Details {
			details[k] = v
		}
		out.Details = details
	}
	return &out
}
