// Package probe reads intrinsic metadata (duration, dimensions, frame rate)
// from media files by running ffprobe.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-composer/internal/logging"
)

const maxStderrBytes = 4 * 1024

var ErrNoVideoStream = errors.New("no video stream")

// Result is the metadata the readiness coordinator needs from a file.
type Result struct {
	Duration  time.Duration
	Width     int
	Height    int
	FrameRate float64
	Codec     string
}

// Prober is satisfied by FFProbe and by test fakes.
type Prober interface {
	Probe(ctx context.Context, path string) (*Result, error)
}

// FFProbe runs the ffprobe binary.
type FFProbe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewFFProbe(binary string, timeout time.Duration, logger *slog.Logger) *FFProbe {
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FFProbe{binary: binary, timeout: timeout, logger: logger}
}

func (p *FFProbe) Probe(ctx context.Context, path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("probe %s: %w", logging.SanitizePath(path), err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		p.logger.Warn("ffprobe failed",
			"path", logging.SanitizePath(path),
			"duration_ms", time.Since(start).Milliseconds(),
			"stderr_tail", stderr.String(),
		)
		return nil, fmt.Errorf("ffprobe %s: %w: %s", logging.SanitizePath(path), err, stderr.String())
	}

	res, err := ParseOutput(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", logging.SanitizePath(path), err)
	}

	p.logger.Debug("ffprobe complete",
		"path", logging.SanitizePath(path),
		"duration", res.Duration.String(),
		"width", res.Width,
		"height", res.Height,
		"frame_rate", res.FrameRate,
	)
	return res, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseOutput extracts a Result from ffprobe's JSON output. The container
// duration wins over the stream duration when both are present.
func ParseOutput(data []byte) (*Result, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	for _, st := range out.Streams {
		if st.CodecType != "video" {
			continue
		}

		res := &Result{
			Width:  st.Width,
			Height: st.Height,
			Codec:  st.CodecName,
		}
		res.FrameRate = parseRate(st.AvgFrameRate)
		if res.FrameRate == 0 {
			res.FrameRate = parseRate(st.RFrameRate)
		}

		dur := out.Format.Duration
		if dur == "" || dur == "N/A" {
			dur = st.Duration
		}
		secs, err := strconv.ParseFloat(dur, 64)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid duration %q", dur)
		}
		res.Duration = time.Duration(secs * float64(time.Second)).Round(time.Microsecond)
		return res, nil
	}
	return nil, ErrNoVideoStream
}

// parseRate reads "30000/1001" or "25" style frame rates; 0 means unknown.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// tailBuffer keeps only the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		tail := append([]byte(nil), b[len(b)-t.limit:]...)
		t.buf.Reset()
		t.buf.Write(tail)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}
