package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalhq/vorpal/internal/models"
)

func testActor() models.Actor {
	return models.Actor{ID: "tester", Type: models.ActorTypeUser}
}

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return New(store, Config{}, nil, nil), store
}

func appendEvent(t *testing.T, l *Ledger, systemID *string, eventType string) *models.AuditEvent {
	t.Helper()
	ev, err := l.Append(context.Background(), &models.AuditEvent{
		SystemID:  systemID,
		EventType: eventType,
		Actor:     testActor(),
		Action:    "test",
	})
	require.NoError(t, err)
	return ev
}

func TestAppendAssignsIdentityAndHash(t *testing.T) {
	l, _ := newTestLedger(t)

	ev := appendEvent(t, l, nil, "system.created")
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.NotEmpty(t, ev.EventHash)
	assert.Empty(t, ev.PreviousHash, "first event in a chain has no predecessor")

	computed, err := ComputeEventHash(ev)
	require.NoError(t, err)
	assert.Equal(t, computed, ev.EventHash)
}

func TestAppendChainsWithinScope(t *testing.T) {
	l, _ := newTestLedger(t)

	first := appendEvent(t, l, nil, "system.created")
	second := appendEvent(t, l, nil, "system.updated")
	third := appendEvent(t, l, nil, "system.deleted")

	assert.Equal(t, first.EventHash, second.PreviousHash)
	assert.Equal(t, second.EventHash, third.PreviousHash)
}

func TestAppendKeepsScopesIndependent(t *testing.T) {
	l, _ := newTestLedger(t)
	sysA := "sys-a"
	sysB := "sys-b"

	a1 := appendEvent(t, l, &sysA, "system.created")
	b1 := appendEvent(t, l, &sysB, "system.created")
	a2 := appendEvent(t, l, &sysA, "system.updated")
	platform := appendEvent(t, l, nil, "policy.seeded")

	assert.Empty(t, a1.PreviousHash)
	assert.Empty(t, b1.PreviousHash, "a new system starts a fresh chain")
	assert.Equal(t, a1.EventHash, a2.PreviousHash)
	assert.Empty(t, platform.PreviousHash, "platform chain is separate from system chains")
}

func TestAppendRejectsInvalidDrafts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, nil)
	assert.Error(t, err)

	_, err = l.Append(ctx, &models.AuditEvent{Actor: testActor(), Action: "x"})
	assert.Error(t, err, "event_type required")

	_, err = l.Append(ctx, &models.AuditEvent{
		EventType: "system.created",
		Actor:     models.Actor{ID: "x", Type: "martian"},
		Action:    "x",
	})
	assert.Error(t, err, "unknown actor type")
}

func TestVerifyScopeDetectsTamperedDetails(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, Config{}, nil, nil)
	sysID := "sys-tamper"

	for i := 0; i < 5; i++ {
		appendEvent(t, l, &sysID, "system.updated")
	}

	// Reach into the store and mutate one persisted event the way an
	// attacker with database access would.
	store.mu.Lock()
	store.events[2].Details = map[string]interface{}{"forged": true}
	tampered := store.events[2].ID
	store.mu.Unlock()

	report, err := l.VerifyScope(context.Background(), sysID, nil, nil)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	assert.Equal(t, 5, report.TotalEvents)
	assert.Equal(t, 1, report.InvalidEvents)
	require.NotNil(t, report.FirstInvalidEventID)
	assert.Equal(t, tampered, *report.FirstInvalidEventID)
}

func TestVerifyScopeDetectsBrokenLink(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, Config{}, nil, nil)
	sysID := "sys-link"

	for i := 0; i < 4; i++ {
		appendEvent(t, l, &sysID, "system.updated")
	}

	// Re-point one event at a forged predecessor and recompute its own
	// hash so only the link check can catch it.
	store.mu.Lock()
	store.events[2].PreviousHash = "0000000000000000"
	rehashed, err := ComputeEventHash(&store.events[2])
	require.NoError(t, err)
	store.events[2].EventHash = rehashed
	broken := store.events[2].ID
	store.mu.Unlock()

	report, err := l.VerifyScope(context.Background(), sysID, nil, nil)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	require.NotNil(t, report.FirstInvalidEventID)
	assert.Equal(t, broken, *report.FirstInvalidEventID)
}

func TestVerifyAllAggregatesScopes(t *testing.T) {
	l, _ := newTestLedger(t)
	sysA := "sys-a"
	sysB := "sys-b"
	appendEvent(t, l, &sysA, "system.created")
	appendEvent(t, l, &sysB, "system.created")
	appendEvent(t, l, nil, "policy.seeded")

	report, err := l.VerifyAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, 3, report.TotalEvents)
	assert.Equal(t, 3, report.ValidEvents)
	assert.Equal(t, "audit chain integrity verified", report.Message)
}

func TestVerifyAllEmptyLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	report, err := l.VerifyAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, 0, report.TotalEvents)
	assert.Equal(t, "no events to verify", report.Message)
}

// truncatingStore drops sub-microsecond precision on every read, the way
// a timestamptz column does on the wire.
type truncatingStore struct {
	*MemoryStore
}

func (s *truncatingStore) Scan(ctx context.Context, f Filter) ([]models.AuditEvent, error) {
	events, err := s.MemoryStore.Scan(ctx, f)
	for i := range events {
		events[i].Timestamp = events[i].Timestamp.Truncate(time.Microsecond)
	}
	return events, err
}

func (s *truncatingStore) Get(ctx context.Context, id string) (*models.AuditEvent, error) {
	ev, err := s.MemoryStore.Get(ctx, id)
	if ev != nil {
		ev.Timestamp = ev.Timestamp.Truncate(time.Microsecond)
	}
	return ev, err
}

func TestVerifySurvivesTimestampRoundTrip(t *testing.T) {
	store := &truncatingStore{MemoryStore: NewMemoryStore()}
	clock := func() time.Time {
		return time.Date(2026, 2, 1, 10, 0, 0, 123456789, time.UTC)
	}
	l := New(store, Config{Clock: clock}, nil, nil)

	for i := 0; i < 3; i++ {
		appendEvent(t, l, nil, "system.updated")
	}

	report, err := l.VerifyScope(context.Background(), "", nil, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified, "untampered events must verify after a store round trip: %s", report.Message)
	assert.Equal(t, 3, report.ValidEvents)
	assert.Equal(t, 0, report.InvalidEvents)
}

func TestVerifySurvivesRoundTripWithCallerTimestamp(t *testing.T) {
	store := &truncatingStore{MemoryStore: NewMemoryStore()}
	l := New(store, Config{}, nil, nil)

	_, err := l.Append(context.Background(), &models.AuditEvent{
		EventType: "system.created",
		Actor:     testActor(),
		Action:    "create",
		Timestamp: time.Date(2026, 2, 1, 10, 0, 0, 999999999, time.UTC),
	})
	require.NoError(t, err)

	report, err := l.VerifyScope(context.Background(), "", nil, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)
}

// conflictingStore wedges the first N appends with ErrChainConflict to
// exercise the ledger's retry loop.
type conflictingStore struct {
	*MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) Append(ctx context.Context, ev *models.AuditEvent, expectedPrev string) error {
	s.mu.Lock()
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()
	if remaining > 0 {
		return ErrChainConflict
	}
	return s.MemoryStore.Append(ctx, ev, expectedPrev)
}

func TestAppendRetriesAfterChainConflict(t *testing.T) {
	store := &conflictingStore{MemoryStore: NewMemoryStore(), conflicts: 2}
	l := New(store, Config{MaxRetries: 3}, nil, nil)

	ev, err := l.Append(context.Background(), &models.AuditEvent{
		EventType: "system.created",
		Actor:     testActor(),
		Action:    "create",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.EventHash)
}

func TestAppendGivesUpAfterMaxRetries(t *testing.T) {
	store := &conflictingStore{MemoryStore: NewMemoryStore(), conflicts: 10}
	l := New(store, Config{MaxRetries: 3}, nil, nil)

	_, err := l.Append(context.Background(), &models.AuditEvent{
		EventType: "system.created",
		Actor:     testActor(),
		Action:    "create",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChainConflict)
}

func TestTimestampsNeverDecrease(t *testing.T) {
	// A clock that steps backwards must not produce out-of-order events.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, 2 * time.Second, 1 * time.Second, 3 * time.Second}
	var call int
	clock := func() time.Time {
		ts := base.Add(offsets[call%len(offsets)])
		call++
		return ts
	}

	store := NewMemoryStore()
	l := New(store, Config{Clock: clock}, nil, nil)

	var last time.Time
	for i := 0; i < 4; i++ {
		ev := appendEvent(t, l, nil, fmt.Sprintf("tick.%d", i))
		assert.False(t, ev.Timestamp.Before(last), "timestamp regressed at event %d", i)
		last = ev.Timestamp
	}
}

func TestListPaginates(t *testing.T) {
	l, _ := newTestLedger(t)
	sysID := "sys-page"
	for i := 0; i < 7; i++ {
		appendEvent(t, l, &sysID, "system.updated")
	}

	events, total, err := l.List(context.Background(), Filter{
		Scope:  &sysID,
		Limit:  3,
		Offset: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, events, 3)
}

func TestListFiltersByEventType(t *testing.T) {
	l, _ := newTestLedger(t)
	appendEvent(t, l, nil, "system.created")
	appendEvent(t, l, nil, "policy.seeded")
	appendEvent(t, l, nil, "system.created")

	events, total, err := l.List(context.Background(), Filter{EventType: "system.created"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, ev := range events {
		assert.Equal(t, "system.created", ev.EventType)
	}
}
