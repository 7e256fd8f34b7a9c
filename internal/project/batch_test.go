package project

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

func TestBuildAll_ReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4", "b.mov", "broken.mp4")
	s, p := newSession(t, nil)
	ctx := context.Background()

	a, _, _ := s.AddRaw(filepath.Join(dir, "a.mp4"), "")
	b, _, _ := s.AddRaw(filepath.Join(dir, "b.mov"), "")
	broken, _, _ := s.AddRaw(filepath.Join(dir, "broken.mp4"), "")

	onA1, _ := s.Derive(a.ID, "onA1", []timeline.Interval{{Start: 0, End: 50 * sec}}, true)
	onA2, _ := s.Derive(a.ID, "onA2", nil, false)
	onB, _ := s.Derive(b.ID, "onB", []timeline.Interval{{Start: 50 * sec, End: 70 * sec}}, true)
	onBroken, _ := s.Derive(broken.ID, "onBroken", nil, false)
	orphan := media.Item{ID: "orphan", Kind: media.KindDerived, BaseID: "missing"}
	if err := s.Register(orphan); err != nil {
		t.Fatalf("Register(orphan) error = %v", err)
	}

	ids := []string{onA1.ID, onA2.ID, onB.ID, onBroken.ID, orphan.ID}
	report := s.BuildAll(ctx, ids)

	if report.Total != 5 || report.Failed != 3 {
		t.Fatalf("report = %d/%d, want 3 of 5 failed", report.Failed, report.Total)
	}
	if report.Summary() != "3 of 5 items failed" {
		t.Errorf("Summary() = %q", report.Summary())
	}
	for i, res := range report.Results {
		if res.ID != ids[i] {
			t.Errorf("Results[%d] = %s, want request order", i, res.ID)
		}
	}

	if c := report.Results[0].Composition; c == nil || c.Duration != 50*sec {
		t.Errorf("onA1 composition = %+v, want 50s", c)
	}
	if c := report.Results[1].Composition; c == nil || c.Duration != 100*sec {
		t.Errorf("onA2 composition = %+v, want 100s", c)
	}

	errs := report.Errors()
	if !errors.Is(errs[onB.ID], media.ErrInvalidInterval) {
		t.Errorf("onB error = %v, want ErrInvalidInterval", errs[onB.ID])
	}
	if !errors.Is(errs[onBroken.ID], media.ErrNotReady) {
		t.Errorf("onBroken error = %v, want ErrNotReady", errs[onBroken.ID])
	}
	if !errors.Is(errs[orphan.ID], media.ErrMissingBase) {
		t.Errorf("orphan error = %v, want ErrMissingBase", errs[orphan.ID])
	}

	if got := p.calls.Load(); got != 3 {
		t.Errorf("probe calls = %d, want one per raw resource", got)
	}
}

func TestBuildAll_DefaultsToEveryItem(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	s, _ := newSession(t, nil)

	a, _, _ := s.AddRaw(filepath.Join(dir, "a.mp4"), "")
	s.Derive(a.ID, "x", nil, false)

	report := s.BuildAll(context.Background(), nil)
	if report.Total != 2 || report.Failed != 0 {
		t.Errorf("report = %s, want 0 of 2", report.Summary())
	}
}
