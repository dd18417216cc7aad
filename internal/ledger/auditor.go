package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/vorpalhq/vorpal/internal/models"
)

// Auditor runs scheduled full-chain verification and records each run as a
// platform-chain audit event, so the ledger carries its own verification
// history.
type Auditor struct {
	ledger   *Ledger
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewAuditor builds a scheduled verifier. schedule is a standard cron
// expression such as "0 3 * * *"; empty disables scheduling.
func NewAuditor(l *Ledger, schedule string, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		ledger:   l,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "auditor"),
	}
}

// Start schedules verification runs and returns immediately. The scheduler
// stops when ctx is cancelled.
func (a *Auditor) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.schedule == "" {
		a.logger.Info("verification schedule not configured, skipping auditor")
		return nil
	}
	if _, err := cron.ParseStandard(a.schedule); err != nil {
		return fmt.Errorf("invalid verification schedule %q: %w", a.schedule, err)
	}
	if _, err := a.cron.AddFunc(a.schedule, func() { a.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule verification: %w", err)
	}

	a.cron.Start()
	a.running = true
	a.logger.Info("auditor started", "schedule", a.schedule)

	go func() {
		<-ctx.Done()
		a.Stop()
	}()
	return nil
}

// RunOnce verifies every chain and appends the outcome as an audit event.
func (a *Auditor) RunOnce(ctx context.Context) {
	report, err := a.ledger.VerifyAll(ctx, nil, nil)
	if err != nil {
		a.logger.Error("scheduled verification failed", "error", err)
		return
	}

	if report.Verified {
		a.logger.Info("scheduled verification completed",
			"total_events", report.TotalEvents)
	} else {
		a.logger.Error("scheduled verification found invalid events",
			"invalid_events", report.InvalidEvents,
			"first_invalid", report.FirstInvalidEventID)
	}

	details := map[string]interface{}{
		"verified":       report.Verified,
		"total_events":   report.TotalEvents,
		"valid_events":   report.ValidEvents,
		"invalid_events": report.InvalidEvents,
		"message":        report.Message,
	}
	if report.FirstInvalidEventID != nil {
		details["first_invalid_event_id"] = *report.FirstInvalidEventID
	}

	_, err = a.ledger.Append(ctx, &models.AuditEvent{
		EventType: "audit.verified",
		Action:    "verify",
		Actor: models.Actor{
			ID:          "auditor",
			Type:        models.ActorTypeScheduler,
			DisplayName: "scheduled chain auditor",
		},
		Details: details,
	})
	if err != nil {
		a.logger.Error("record verification event", "error", err)
	}
}

// Stop halts the scheduler and waits for a running verification to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron != nil && a.running {
		<-a.cron.Stop().Done()
		a.running = false
		a.logger.Info("auditor stopped")
	}
}
