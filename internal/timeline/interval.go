// Package timeline holds the interval arithmetic used by the cut engine:
// cut validation, normalization of cuts into keep intervals, and parsing of
// user-supplied interval lists.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInterval reports a cut that is empty, reversed, or outside the
// item's duration.
var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a half-open span [Start, End) on one item's timeline.
type Interval struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Len returns End-Start. It is negative for reversed intervals.
func (iv Interval) Len() time.Duration {
	return iv.End - iv.Start
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start, iv.End)
}

// Total sums the lengths of the given intervals.
func Total(intervals []Interval) time.Duration {
	var sum time.Duration
	for _, iv := range intervals {
		sum += iv.Len()
	}
	return sum
}

// Clone returns a copy that shares no backing array with in.
func Clone(in []Interval) []Interval {
	if in == nil {
		return nil
	}
	out := make([]Interval, len(in))
	copy(out, in)
	return out
}

// Validate checks cuts against the item's timeline. A non-positive d skips the
// upper-bound check, which lets callers validate before the duration is known.
func Validate(cuts []Interval, d time.Duration) error {
	for i, c := range cuts {
		if c.Start < 0 {
			return fmt.Errorf("cut %d %s starts before zero: %w", i, c, ErrInvalidInterval)
		}
		if c.End <= c.Start {
			return fmt.Errorf("cut %d %s is empty or reversed: %w", i, c, ErrInvalidInterval)
		}
		if d > 0 && c.End > d {
			return fmt.Errorf("cut %d %s ends after duration %s: %w", i, c, d, ErrInvalidInterval)
		}
	}
	return nil
}

// FromSeconds converts decimal seconds, as stored and exchanged over HTTP,
// into a Duration rounded to the nearest microsecond.
func FromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}

// Seconds converts a Duration into decimal seconds.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// IntervalFromSeconds builds an Interval from a decimal-second pair.
func IntervalFromSeconds(start, end float64) Interval {
	return Interval{Start: FromSeconds(start), End: FromSeconds(end)}
}
