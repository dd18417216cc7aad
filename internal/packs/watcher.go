package packs

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-seeds the policy store whenever a pack file changes. Events
// are debounced so an editor save (write + rename + chmod) triggers one
// reload, not three.
type Watcher struct {
	loader   *Loader
	seeder   Seeder
	debounce time.Duration
	logger   *slog.Logger
}

func NewWatcher(loader *Loader, seeder Seeder, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		loader:   loader,
		seeder:   seeder,
		debounce: 200 * time.Millisecond,
		logger:   logger.With("component", "packs.watcher"),
	}
}

// Run blocks until ctx is cancelled, reloading packs on change.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.loader.dir); err != nil {
		return err
	}
	w.logger.Info("watching policy packs", "dir", w.loader.dir)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pack watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.logger.Info("pack change detected, reseeding policies")
			if err := w.loader.Seed(ctx, w.seeder); err != nil {
				w.logger.Error("pack reseed failed", "error", err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("pack watcher error", "error", err)
		}
	}
}
