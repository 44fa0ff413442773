package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"video2notes/internal/media/ffprobe"
)

// Runner executes external commands. stage.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, onLine func(string), name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Tools bundles the ffmpeg/ffprobe binaries with the runner used to invoke
// them.
type Tools struct {
	FFmpeg  string
	FFprobe string
	Runner  Runner
}

// Rect is a crop region as x, y, width, height.
type Rect [4]int

func (t Tools) ffmpeg() string {
	if strings.TrimSpace(t.FFmpeg) == "" {
		return "ffmpeg"
	}
	return t.FFmpeg
}

func baseArgs() []string {
	return []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}
}

// Probe inspects a media file.
func (t Tools) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, t.Runner, t.FFprobe, path)
}

// ExtractAudio writes the source's audio track as AAC (m4a container).
func (t Tools) ExtractAudio(ctx context.Context, source, dest string, onLine func(string)) error {
	args := append(baseArgs(),
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-c:a", "aac",
		"-b:a", "192k",
		dest,
	)
	if err := t.Runner.Run(ctx, onLine, t.ffmpeg(), args...); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}
	return nil
}

// ExtractFrame writes the single frame at atSeconds as an image.
func (t Tools) ExtractFrame(ctx context.Context, source string, atSeconds float64, dest string) error {
	args := append(baseArgs(),
		"-ss", formatSeconds(atSeconds),
		"-i", source,
		"-frames:v", "1",
		dest,
	)
	if err := t.Runner.Run(ctx, nil, t.ffmpeg(), args...); err != nil {
		return fmt.Errorf("ffmpeg extract frame: %w", err)
	}
	return nil
}

// SampleFrames writes frames at fps into dir as frame_%06d.png. Each mask is
// filled black in full-frame coordinates before the frame is cropped to crop
// (when it has a positive size). Frame n (1-based) corresponds to time
// (n-1)/fps.
func (t Tools) SampleFrames(ctx context.Context, source string, fps float64, crop Rect, masks []Rect, dir string, onLine func(string)) error {
	if fps <= 0 {
		fps = 1
	}
	filters := []string{"fps=" + strconv.FormatFloat(fps, 'f', -1, 64)}
	for _, m := range masks {
		if m[2] <= 0 || m[3] <= 0 {
			continue
		}
		filters = append(filters, fmt.Sprintf("drawbox=x=%d:y=%d:w=%d:h=%d:color=black:t=fill", m[0], m[1], m[2], m[3]))
	}
	if crop[2] > 0 && crop[3] > 0 {
		filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d", crop[2], crop[3], crop[0], crop[1]))
	}
	args := append(baseArgs(),
		"-i", source,
		"-vf", strings.Join(filters, ","),
		"-an",
		filepath.Join(dir, "frame_%06d.png"),
	)
	if err := t.Runner.Run(ctx, onLine, t.ffmpeg(), args...); err != nil {
		return fmt.Errorf("ffmpeg sample frames: %w", err)
	}
	return nil
}

// ExtractClip copies [start, start+duration) of source's audio to dest as WAV.
func (t Tools) ExtractClip(ctx context.Context, source string, start, duration float64, dest string) error {
	if duration <= 0 {
		return fmt.Errorf("extract clip: invalid duration %v", duration)
	}
	args := append(baseArgs(),
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", source,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	)
	if err := t.Runner.Run(ctx, nil, t.ffmpeg(), args...); err != nil {
		return fmt.Errorf("ffmpeg extract clip: %w", err)
	}
	return nil
}

// CutSegment re-encodes [start, end) of source into dest (H.264/AAC).
func (t Tools) CutSegment(ctx context.Context, source string, start, end float64, dest string, onLine func(string)) error {
	if end <= start {
		return fmt.Errorf("cut segment: end %v not after start %v", end, start)
	}
	args := append(baseArgs(),
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", source,
		"-c:v", "libx264",
		"-c:a", "aac",
		dest,
	)
	if err := t.Runner.Run(ctx, onLine, t.ffmpeg(), args...); err != nil {
		return fmt.Errorf("ffmpeg cut segment: %w", err)
	}
	return nil
}

func formatSeconds(value float64) string {
	if value < 0 {
		value = 0
	}
	return strconv.FormatFloat(value, 'f', 3, 64)
}
