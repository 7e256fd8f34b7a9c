package compose

import (
	"fmt"
	"time"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// segmentsFromKeep cuts a single raw resource of length d down to the keep
// intervals, which are expressed on the resource's own timeline.
func segmentsFromKeep(resourceID string, d time.Duration, keep []timeline.Interval) []media.Segment {
	out := make([]media.Segment, 0, len(keep))
	for _, k := range keep {
		out = append(out, media.Segment{
			ResourceID:       resourceID,
			ResourceDuration: d,
			TrimStart:        k.Start,
			TrimEnd:          d - k.End,
		})
	}
	return out
}

// sliceSegments keeps the parts of base that fall inside the keep intervals,
// which are expressed on the composition axis of base (the concatenation of
// its segment lengths), not on any raw file's timeline.
//
// Every removed span between two keep intervals is a cut on that axis. A cut
// covering a whole segment drops it, a cut over its leading edge raises
// TrimStart, one over its trailing edge raises TrimEnd, and a cut strictly
// inside a segment leaves two copies of it with complementary trims.
func sliceSegments(base []media.Segment, keep []timeline.Interval) []media.Segment {
	var out []media.Segment

	var offset time.Duration
	k := 0
	for _, seg := range base {
		segStart := offset
		segEnd := offset + seg.Length()
		offset = segEnd

		for k < len(keep) && keep[k].End <= segStart {
			k++
		}
		for j := k; j < len(keep) && keep[j].Start < segEnd; j++ {
			lo := max(keep[j].Start, segStart)
			hi := min(keep[j].End, segEnd)
			if hi <= lo {
				continue
			}
			piece := seg
			piece.TrimStart = seg.TrimStart + (lo - segStart)
			piece.TrimEnd = seg.TrimEnd + (segEnd - hi)
			out = append(out, piece)
		}
	}
	return out
}

// checkComposition enforces the composition post-conditions: no empty or
// malformed segment, and a span equal to the normalized trimmed duration.
func checkComposition(c *media.Composition, want time.Duration) error {
	for i, s := range c.Segments {
		if s.Length() <= 0 || s.TrimStart < 0 || s.TrimEnd < 0 {
			return fmt.Errorf("segment %d of %s has trims %s/%s on %s: %w",
				i, c.ItemID, s.TrimStart, s.TrimEnd, s.ResourceDuration, media.ErrBuildFailure)
		}
	}
	if span := c.Span(); span != want {
		return fmt.Errorf("composition %s spans %s, want %s: %w", c.ItemID, span, want, media.ErrBuildFailure)
	}
	return nil
}

// CutsOnCompositionAxis reports the effective cuts of item against the
// duration of what it plays, after clamping and merging.
func CutsOnCompositionAxis(item media.Item, baseDuration time.Duration) []timeline.Interval {
	if !item.HasAppliedCuts() {
		return nil
	}
	keep, _ := timeline.Normalize(item.Cuts, baseDuration)
	return timeline.Complement(keep, baseDuration)
}
