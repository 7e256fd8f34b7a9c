package timeline

import (
	"sort"
	"time"
)

// Normalize turns a cut list into the sorted, disjoint keep intervals that
// survive on [0, d], together with their total length.
//
// An empty cut list is a pass-through: no keep intervals are returned and
// trimmed equals d. A non-empty cut list that removes everything returns no
// keep intervals and trimmed == 0. Callers tell the two apart by len(cuts).
//
// Cuts may be unsorted, overlapping or reach past the domain; they are clamped
// to [0, d] and merged before the sweep, so no keep interval is ever empty,
// reversed or out of order.
func Normalize(cuts []Interval, d time.Duration) ([]Interval, time.Duration) {
	if len(cuts) == 0 {
		return nil, d
	}
	if d <= 0 {
		return nil, 0
	}

	merged := mergeCuts(cuts, d)
	if len(merged) == 0 {
		return []Interval{{Start: 0, End: d}}, d
	}

	var keep []Interval
	var cursor time.Duration
	for _, c := range merged {
		if cursor >= d {
			break
		}
		if c.Start <= 0 {
			if c.End > cursor {
				cursor = c.End
			}
			continue
		}
		keep = append(keep, Interval{Start: cursor, End: c.Start})
		cursor = c.End
	}
	if cursor > 0 && cursor < d {
		keep = append(keep, Interval{Start: cursor, End: d})
	}

	return keep, Total(keep)
}

// mergeCuts clamps cuts to [0, d], drops empty ones and coalesces overlapping
// or touching cuts. The result is sorted ascending.
func mergeCuts(cuts []Interval, d time.Duration) []Interval {
	clamped := make([]Interval, 0, len(cuts))
	for _, c := range cuts {
		if c.Start < 0 {
			c.Start = 0
		}
		if c.End > d {
			c.End = d
		}
		if c.End <= c.Start {
			continue
		}
		clamped = append(clamped, c)
	}

	sort.Slice(clamped, func(i, j int) bool {
		if clamped[i].Start == clamped[j].Start {
			return clamped[i].End < clamped[j].End
		}
		return clamped[i].Start < clamped[j].Start
	})

	var out []Interval
	for _, c := range clamped {
		if n := len(out); n > 0 && c.Start <= out[n-1].End {
			if c.End > out[n-1].End {
				out[n-1].End = c.End
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// Complement returns the cuts that remove everything on [0, d] outside keep.
// Normalizing the result against d yields keep again.
func Complement(keep []Interval, d time.Duration) []Interval {
	var cuts []Interval
	var cursor time.Duration
	for _, k := range mergeCuts(keep, d) {
		if k.Start > cursor {
			cuts = append(cuts, Interval{Start: cursor, End: k.Start})
		}
		cursor = k.End
	}
	if cursor < d {
		cuts = append(cuts, Interval{Start: cursor, End: d})
	}
	return cuts
}
