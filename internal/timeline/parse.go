package timeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFormat = errors.New("invalid interval format")

// ParseInterval parses "start-end" in decimal seconds, e.g. "10-20" or
// "1.5-3.25". Whitespace around either bound is ignored.
func ParseInterval(spec string) (Interval, error) {
	spec = strings.TrimSpace(spec)
	idx := strings.Index(spec, "-")
	if idx <= 0 || idx == len(spec)-1 {
		return Interval{}, fmt.Errorf("%q: %w", spec, ErrInvalidFormat)
	}

	start, err := strconv.ParseFloat(strings.TrimSpace(spec[:idx]), 64)
	if err != nil {
		return Interval{}, fmt.Errorf("%q: bad start: %w", spec, ErrInvalidFormat)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(spec[idx+1:]), 64)
	if err != nil {
		return Interval{}, fmt.Errorf("%q: bad end: %w", spec, ErrInvalidFormat)
	}

	iv := IntervalFromSeconds(start, end)
	if err := Validate([]Interval{iv}, 0); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// ParseIntervals parses a comma separated list such as "10-20,50-60".
// An empty string yields no intervals.
func ParseIntervals(list string) ([]Interval, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	parts := strings.Split(list, ",")
	out := make([]Interval, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		iv, err := ParseInterval(p)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

// FormatIntervals is the inverse of ParseIntervals.
func FormatIntervals(intervals []Interval) string {
	parts := make([]string, len(intervals))
	for i, iv := range intervals {
		parts[i] = strconv.FormatFloat(iv.Start.Seconds(), 'f', -1, 64) + "-" +
			strconv.FormatFloat(iv.End.Seconds(), 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
