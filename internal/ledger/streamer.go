package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vorpalhq/vorpal/internal/canonical"
	"github.com/vorpalhq/vorpal/internal/models"
)

// StreamerConfig configures the durable DB-first streamer.
type StreamerConfig struct {
	// Events fetched per claim
	BatchSize int

	// PollInterval when there is no pending work
	PollInterval time.Duration

	// MaxConcurrency bounds concurrent processing of claimed events
	MaxConcurrency int
}

// Streamer drains appended audit events to Kafka and S3. The database is
// the source of truth for delivery state: rows are claimed with
// FOR UPDATE SKIP LOCKED, processed, and marked streamed or failed, so a
// crash mid-batch only delays delivery, never loses it.
type Streamer struct {
	store    *PGStore
	producer Producer
	archiver Archiver
	cfg      StreamerConfig
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewStreamer(store *PGStore, producer Producer, archiver Archiver, cfg StreamerConfig, logger *slog.Logger) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		store:    store,
		producer: producer,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With("component", "streamer"),
	}
}

// Run polls for pending events and processes batches with bounded
// concurrency until ctx is cancelled. Each batch drains fully before the
// next claim.
func (s *Streamer) Run(ctx context.Context) error {
	s.logger.Info("streamer starting", "batch_size", s.cfg.BatchSize, "concurrency", s.cfg.MaxConcurrency)
	defer s.logger.Info("streamer stopped")

	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if s.producer != nil {
				_ = s.producer.Close()
			}
			return ctx.Err()
		default:
		}

		events, err := s.store.FetchPendingEvents(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("fetch pending events", "error", err)
			sleepCtx(ctx, s.cfg.PollInterval)
			continue
		}
		if len(events) == 0 {
			sleepCtx(ctx, s.cfg.PollInterval)
			continue
		}

		for i := range events {
			ev := events[i]
			sem <- struct{}{}
			s.wg.Add(1)
			go func() {
				defer func() {
					<-sem
					s.wg.Done()
				}()
				if err := s.processEvent(ctx, &ev); err != nil {
					s.logger.Error("process event", "event_id", ev.ID, "error", err)
				}
			}()
		}
		s.wg.Wait()
	}
}

// processEvent produces the canonical envelope to Kafka, archives it to S3,
// and records the outcome. Both sinks must succeed before the row is marked
// streamed.
func (s *Streamer) processEvent(parentCtx context.Context, ev *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	canonBytes, err := canonical.Marshal(StreamEnvelope(ev))
	if err != nil {
		s.markFailure(parentCtx, ev.ID, fmt.Sprintf("canonicalize envelope: %v", err))
		return fmt.Errorf("canonicalize envelope: %w", err)
	}

	// Key by chain scope so one chain's events land on one partition in order.
	producedAt, err := s.producer.Produce(ctx, []byte(ev.ChainScope()), canonBytes)
	if err != nil {
		s.markFailure(parentCtx, ev.ID, fmt.Sprintf("kafka produce: %v", err))
		return fmt.Errorf("kafka produce: %w", err)
	}

	objectKey, err := s.archiver.ArchiveEvent(ctx, ev)
	if err != nil {
		s.markFailure(parentCtx, ev.ID, fmt.Sprintf("s3 archive: %v", err))
		return fmt.Errorf("s3 archive: %w", err)
	}

	key := sql.NullString{String: objectKey, Valid: objectKey != ""}
	if err := s.store.MarkStreamResult(parentCtx, ev.ID, key, true, sql.NullString{}); err != nil {
		return fmt.Errorf("mark stream success: %w", err)
	}

	s.logger.Debug("event streamed",
		"event_id", ev.ID,
		"produced_at", producedAt.Format(time.RFC3339Nano),
		"object_key", objectKey)
	return nil
}

func (s *Streamer) markFailure(ctx context.Context, id, msg string) {
	errMsg := sql.NullString{String: msg, Valid: true}
	if err := s.store.MarkStreamResult(ctx, id, sql.NullString{}, false, errMsg); err != nil {
		s.logger.Error("mark stream failure", "event_id", id, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
