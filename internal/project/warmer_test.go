package project

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/heimdex/heimdex-composer/internal/media"
)

func TestWarmer_RunOnce(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4", "broken.mp4")
	s, p := newSession(t, nil)
	ctx := context.Background()

	a, _, _ := s.AddRaw(filepath.Join(dir, "a.mp4"), "")
	d, _ := s.Derive(a.ID, "d", nil, false)
	s.AddRaw(filepath.Join(dir, "broken.mp4"), "")

	w := NewWarmer(s, time.Hour, testLogger())
	if got := w.RunOnce(ctx); got != 2 {
		t.Errorf("RunOnce() = %d, want 2 ready", got)
	}
	if it, _ := s.Lookup(d.ID); it.State != media.StateReady {
		t.Errorf("derived item state = %v, want ready", it.State)
	}

	calls := p.calls.Load()
	if got := w.RunOnce(ctx); got != 0 {
		t.Errorf("second RunOnce() = %d, want 0", got)
	}
	if p.calls.Load() != calls {
		t.Error("failed item retried without invalidation")
	}
}

func TestWarmer_StartStopAndPause(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	s, _ := newSession(t, nil)
	a, _, _ := s.AddRaw(filepath.Join(dir, "a.mp4"), "")

	w := NewWarmer(s, 10*time.Millisecond, testLogger())
	w.Pause()
	if !w.IsPaused() {
		t.Fatal("IsPaused() = false after Pause()")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if !w.IsRunning() {
		t.Error("IsRunning() = false while started")
	}
	if it, _ := s.Lookup(a.ID); it.State == media.StateReady {
		t.Error("paused warmer made an item ready")
	}

	w.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if it, _ := s.Lookup(a.ID); it.State == media.StateReady {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if it, _ := s.Lookup(a.ID); it.State != media.StateReady {
		t.Errorf("state = %v after resume, want ready", it.State)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("warmer did not stop")
	}
	if w.IsRunning() {
		t.Error("IsRunning() = true after stop")
	}
}
