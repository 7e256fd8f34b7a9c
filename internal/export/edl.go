// Package export renders compositions as CMX3600 edit decision lists.
package export

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/heimdex/heimdex-composer/internal/media"
)

// GenerateEDL renders comp as one EDL event per segment. Source timecodes are
// positions in the raw file; record timecodes run continuously from zero.
// Every segment's resource must be present in sources.
func GenerateEDL(comp *media.Composition, sources map[string]Source, title string, frameRate float64) (string, error) {
	tc := newTimecoder(frameRate)

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 70))}
	if tc.dropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	var record time.Duration
	for i, seg := range comp.Segments {
		src, ok := sources[seg.ResourceID]
		if !ok {
			return "", fmt.Errorf("segment %d: resource %s: %w", i, seg.ResourceID, media.ErrNotFound)
		}

		length := seg.Length()
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s",
				i+1, ReelName(src.Name), "V",
				tc.format(seg.SourceIn()), tc.format(seg.SourceOut()),
				tc.format(record), tc.format(record+length)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", SanitizeName(src.Name, 0)),
			fmt.Sprintf("* SOURCE FILE:  %s", src.Path),
		)
		record += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n"), nil
}

type timecoder struct {
	rate      float64
	nominal   int
	dropFrame bool
}

func newTimecoder(frameRate float64) timecoder {
	if frameRate <= 0 {
		frameRate = 30
	}
	return timecoder{
		rate:      frameRate,
		nominal:   int(math.Round(frameRate)),
		dropFrame: math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01,
	}
}

func (t timecoder) format(d time.Duration) string {
	if !t.dropFrame {
		frames := int(math.Round(d.Seconds() * float64(t.nominal)))
		return t.label(frames, ':')
	}

	// Drop-frame labels skip the first frame numbers of every minute except
	// each tenth, so the label tracks wall-clock time at 29.97/59.94.
	frames := int(math.Round(d.Seconds() * t.rate))
	drop := t.nominal / 15
	perMinute := t.nominal*60 - drop
	perTenMinutes := perMinute*10 + drop

	tens := frames / perTenMinutes
	rem := frames % perTenMinutes
	frames += 9 * drop * tens
	if rem > drop {
		frames += drop * ((rem - drop) / perMinute)
	}
	return t.label(frames, ';')
}

func (t timecoder) label(frames int, sep byte) string {
	ff := frames % t.nominal
	totalSeconds := frames / t.nominal
	ss := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	mm := totalMinutes % 60
	hh := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d%c%02d", hh, mm, ss, sep, ff)
}
