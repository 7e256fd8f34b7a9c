package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-composer/internal/timeline"
)

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"video.mp4", true},
		{"video.MP4", true},
		{"video.mov", true},
		{"video.mkv", true},
		{"clip.webm", true},
		{"video.avi", false},
		{"document.pdf", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := IsVideoFile(tt.filename); got != tt.want {
				t.Errorf("IsVideoFile(%s) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestSegment_Bounds(t *testing.T) {
	s := Segment{ResourceDuration: 100 * time.Second, TrimStart: 20 * time.Second, TrimEnd: 30 * time.Second}
	if s.Length() != 50*time.Second {
		t.Errorf("Length() = %v, want 50s", s.Length())
	}
	if s.SourceIn() != 20*time.Second || s.SourceOut() != 70*time.Second {
		t.Errorf("source span = [%v, %v), want [20s, 70s)", s.SourceIn(), s.SourceOut())
	}
}

func TestItem_CloneIsDeep(t *testing.T) {
	it := NewDerivedItem("base", "clip", []timeline.Interval{{Start: 1, End: 2}}, true)
	c := it.Clone()
	c.Cuts[0].End = 5
	if it.Cuts[0].End != 2 {
		t.Fatal("Clone shares the cut slice with the original")
	}
}

func TestKind_RoundTrip(t *testing.T) {
	for _, k := range []Kind{KindRaw, KindDerived} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("folder"); err == nil {
		t.Error("ParseKind(folder) should fail")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", ErrMissingBase), "MISSING_BASE"},
		{fmt.Errorf("%w: base: %w", ErrNotReady, ErrCycleDetected), "CYCLE_DETECTED"},
		{fmt.Errorf("%w: base b", ErrNotReady), "NOT_READY"},
		{ErrStale, "BUILD_FAILED"},
		{timeline.ErrInvalidInterval, "INVALID_INTERVAL"},
		{errors.New("boom"), "BUILD_FAILED"},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	if !IsConsistencyDefect(fmt.Errorf("wrap: %w", ErrCycleDetected)) {
		t.Error("cycle should be a consistency defect")
	}
	if IsConsistencyDefect(ErrNotReady) {
		t.Error("not ready is not a consistency defect")
	}
	if !errors.Is(ErrStale, ErrBuildFailure) {
		t.Error("ErrStale should wrap ErrBuildFailure")
	}
}

func TestItem_JSONUsesNames(t *testing.T) {
	it := Item{ID: "a", Kind: KindDerived, BaseID: "r", State: StatePropagatingMetadata}
	data, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"kind":"derived"`) || !strings.Contains(string(data), `"state":"propagating_metadata"`) {
		t.Fatalf("Marshal() = %s, want kind and state names", data)
	}

	var back Item
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Kind != KindDerived || back.State != StatePropagatingMetadata {
		t.Errorf("round trip = %v/%v", back.Kind, back.State)
	}

	if _, err := ParseState("sleeping"); err == nil {
		t.Error("ParseState(sleeping) expected error")
	}
}
