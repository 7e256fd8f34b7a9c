package project

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heimdex/heimdex-composer/internal/media"
)

// Warmer periodically makes pending items ready and caches their
// compositions so interactive requests find them built.
type Warmer struct {
	session      *Session
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewWarmer(session *Session, interval time.Duration, logger *slog.Logger) *Warmer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Warmer{
		session:      session,
		logger:       logger,
		pollInterval: interval,
	}
}

// Start blocks until ctx is done.
func (w *Warmer) Start(ctx context.Context) {
	if w.running.Swap(true) {
		return
	}

	w.logger.Info("warmer started", "interval", w.pollInterval.String())

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("warmer stopping")
			w.running.Store(false)
			return
		case <-ticker.C:
			if !w.paused.Load() {
				w.RunOnce(ctx)
			}
		}
	}
}

func (w *Warmer) Pause() {
	w.paused.Store(true)
	w.logger.Info("warmer paused")
}

func (w *Warmer) Resume() {
	w.paused.Store(false)
	w.logger.Info("warmer resumed")
}

func (w *Warmer) IsPaused() bool {
	return w.paused.Load()
}

func (w *Warmer) IsRunning() bool {
	return w.running.Load()
}

// RunOnce processes the current pending items and returns how many became
// ready.
func (w *Warmer) RunOnce(ctx context.Context) int {
	pending := w.session.Pending()
	if len(pending) == 0 {
		return 0
	}

	report := w.session.BuildAll(ctx, pending)
	ready := 0
	for _, res := range report.Results {
		if res.Err == nil {
			ready++
			continue
		}
		if it, err := w.session.Lookup(res.ID); err == nil && it.State == media.StateFailed {
			w.logger.Debug("item left failed until invalidated", "item_id", res.ID)
		}
	}
	if report.Failed > 0 {
		w.logger.Info("warm pass finished with failures", "summary", report.Summary())
	}
	return ready
}
