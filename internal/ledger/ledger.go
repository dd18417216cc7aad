// Package ledger implements the tamper-evident audit ledger: every
// governance-relevant action is appended as an immutable event whose hash
// covers its own fields plus the hash of the preceding event in the same
// chain scope.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vorpalhq/vorpal/internal/metrics"
	"github.com/vorpalhq/vorpal/internal/models"
)

// ErrChainConflict is returned by a store when the chain head moved between
// reading the tail and persisting the new event. Appends are retried with
// the newly observed tail up to a bounded count.
var ErrChainConflict = errors.New("audit chain head moved")

// Filter selects events for scans. Scope selects one chain (the empty
// string is the platform chain); nil means all chains. Zero-valued fields
// impose no constraint.
type Filter struct {
	Scope        *string
	EventType    string
	ActorID      string
	Action       string
	ResourceType string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
	Descending   bool
}

// Store is the persistence contract for the ledger. Append is the only
// write path; stores must reject updates to existing events.
type Store interface {
	// Head returns the event_hash of the latest event in the scope, or ""
	// when the scope has no events.
	Head(ctx context.Context, scope string) (string, error)

	// Append persists the event. It fails with ErrChainConflict when the
	// scope's head no longer equals expectedPrev.
	Append(ctx context.Context, ev *models.AuditEvent, expectedPrev string) error

	Get(ctx context.Context, id string) (*models.AuditEvent, error)

	// Scan returns events matching the filter, ordered by timestamp
	// (ascending unless Descending is set) with id as tiebreaker.
	Scan(ctx context.Context, f Filter) ([]models.AuditEvent, error)

	Count(ctx context.Context, f Filter) (int, error)

	// Scopes lists every chain scope that has at least one event.
	Scopes(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
}

// Config carries the explicit construction-time choices of the ledger: the
// hash function over event fields and the bounded append retry count. No
// process-wide state is consulted.
type Config struct {
	// HashFunc computes the event hash. Defaults to ComputeEventHash
	// (SHA-256 over canonical JSON).
	HashFunc func(*models.AuditEvent) (string, error)

	// MaxRetries bounds how often an append is retried after a chain
	// conflict before failing. Defaults to 3.
	MaxRetries int

	// Clock supplies event timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Ledger appends audit events and verifies chain integrity. previous_hash
// links within per-scope sub-chains: one chain per system plus a platform
// chain for events with no system.
type Ledger struct {
	store   Store
	hashFn  func(*models.AuditEvent) (string, error)
	retries int
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	// guards timestamp monotonicity across sequential appends
	tsMu   sync.Mutex
	lastTS time.Time
}

// New constructs a Ledger over the given store.
func New(store Store, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Ledger {
	if cfg.HashFunc == nil {
		cfg.HashFunc = ComputeEventHash
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:   store,
		hashFn:  cfg.HashFunc,
		retries: cfg.MaxRetries,
		clock:   cfg.Clock,
		logger:  logger.With("component", "ledger"),
		metrics: m,
	}
}

// Append assigns id and timestamp if unset, links the event to the current
// tail of its chain scope, computes the event hash, and persists it. The
// whole operation fails atomically: nothing is persisted when hashing or
// serialization fails. Concurrent appends to the same scope are serialized
// by the store; on a detected conflict the append is retried against the
// newly observed tail.
func (l *Ledger) Append(ctx context.Context, draft *models.AuditEvent) (*models.AuditEvent, error) {
	if draft == nil {
		return nil, fmt.Errorf("append event: nil draft")
	}
	ev := *draft
	if ev.EventType == "" {
		return nil, fmt.Errorf("append event: event_type required")
	}
	if !ev.Actor.Type.Valid() {
		return nil, fmt.Errorf("append event: invalid actor type %q", ev.Actor.Type)
	}
	if ev.ID == "" {
		ev.ID = models.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.nextTimestamp()
	} else {
		// The hash covers the formatted timestamp; anything finer than
		// the microsecond resolution of timestamptz would not survive a
		// store round trip and the event would fail re-verification.
		ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Microsecond)
	}

	scope := ev.ChainScope()
	started := l.clock()
	var lastErr error
	for attempt := 0; attempt < l.retries; attempt++ {
		head, err := l.store.Head(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("read chain head: %w", err)
		}
		ev.PreviousHash = head

		hash, err := l.hashFn(&ev)
		if err != nil {
			return nil, fmt.Errorf("hash event: %w", err)
		}
		ev.EventHash = hash

		err = l.store.Append(ctx, &ev, head)
		if err == nil {
			l.metrics.ObserveAppend(ev.EventType, l.clock().Sub(started))
			return &ev, nil
		}
		if !errors.Is(err, ErrChainConflict) {
			return nil, fmt.Errorf("append event: %w", err)
		}
		lastErr = err
		l.metrics.IncChainConflict()
		l.logger.Debug("chain head moved, retrying append", "scope", scope, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("append event: head moved %d times: %w", l.retries, lastErr)
}

// nextTimestamp returns a UTC timestamp that strictly increases across
// sequential appends, even if the wall clock stalls or steps backwards.
// Timestamps are truncated to microseconds, the resolution of timestamptz,
// so hashed events verify after a Postgres round trip; strict increase
// keeps chain order and (timestamp, id) scan order identical.
func (l *Ledger) nextTimestamp() time.Time {
	l.tsMu.Lock()
	defer l.tsMu.Unlock()
	ts := l.clock().UTC().Truncate(time.Microsecond)
	if !ts.After(l.lastTS) {
		ts = l.lastTS.Add(time.Microsecond)
	}
	l.lastTS = ts
	return ts
}

// Get returns a single event by id.
func (l *Ledger) Get(ctx context.Context, id string) (*models.AuditEvent, error) {
	return l.store.Get(ctx, id)
}

// List returns events matching the filter plus the total match count for
// pagination.
func (l *Ledger) List(ctx context.Context, f Filter) ([]models.AuditEvent, int, error) {
	events, err := l.store.Scan(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	countFilter := f
	countFilter.Limit = 0
	countFilter.Offset = 0
	total, err := l.store.Count(ctx, countFilter)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// VerifyScope re-verifies one chain scope, optionally restricted to a
// timestamp range. The store's scan supplies a consistent snapshot, so a
// concurrent append cannot surface as a transient discontinuity at the
// tail.
func (l *Ledger) VerifyScope(ctx context.Context, scope string, from, to *time.Time) (models.VerificationReport, error) {
	events, err := l.store.Scan(ctx, Filter{Scope: &scope, From: from, To: to})
	if err != nil {
		return models.VerificationReport{}, fmt.Errorf("scan chain %q: %w", scope, err)
	}
	report := VerifyEvents(events)
	if !report.Verified {
		l.metrics.IncVerifyFailure()
	}
	return report, nil
}

// VerifyAll verifies every known chain scope and aggregates the reports.
// The first invalid event across all scopes (in scope iteration order) is
// reported.
func (l *Ledger) VerifyAll(ctx context.Context, from, to *time.Time) (models.VerificationReport, error) {
	scopes, err := l.store.Scopes(ctx)
	if err != nil {
		return models.VerificationReport{}, fmt.Errorf("list chain scopes: %w", err)
	}
	combined := models.VerificationReport{Verified: true, Message: "audit chain integrity verified"}
	for _, scope := range scopes {
		report, err := l.VerifyScope(ctx, scope, from, to)
		if err != nil {
			return models.VerificationReport{}, err
		}
		combined.TotalEvents += report.TotalEvents
		combined.ValidEvents += report.ValidEvents
		combined.InvalidEvents += report.InvalidEvents
		if !report.Verified {
			combined.Verified = false
			if combined.FirstInvalidEventID == nil {
				combined.FirstInvalidEventID = report.FirstInvalidEventID
			}
		}
	}
	if combined.TotalEvents == 0 {
		combined.Message = "no events to verify"
	} else if !combined.Verified {
		combined.Message = fmt.Sprintf("chain integrity compromised: %d invalid events", combined.InvalidEvents)
	}
	return combined, nil
}

// Ping reports store health.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}
