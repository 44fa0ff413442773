package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"video2notes/internal/config"
	"video2notes/internal/logging"
)

// RunLogger manages a dedicated log file per run.
type RunLogger struct {
	baseDir string
	cfg     *config.Config
}

// NewRunLogger creates run log files under paths.log_dir/runs.
func NewRunLogger(cfg *config.Config) *RunLogger {
	dir := ""
	if cfg != nil && cfg.Paths.LogDir != "" {
		dir = filepath.Join(cfg.Paths.LogDir, "runs")
	}
	return &RunLogger{baseDir: dir, cfg: cfg}
}

// Open creates the log file for a run and returns a logger that writes to both
// base and the file. The returned closer releases the file; it is nil when
// the file could not be created, in which case base is returned unchanged.
func (r *RunLogger) Open(base *slog.Logger, runID, videoName string, started time.Time) (*slog.Logger, string, io.Closer, error) {
	if strings.TrimSpace(r.baseDir) == "" {
		return base, "", nil, fmt.Errorf("run log directory not configured")
	}
	if err := os.MkdirAll(r.baseDir, 0o755); err != nil {
		return base, "", nil, fmt.Errorf("ensure run log directory: %w", err)
	}
	path := filepath.Join(r.baseDir, r.filename(runID, videoName, started))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return base, "", nil, fmt.Errorf("open run log: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	format := "json"
	if r.cfg != nil && strings.TrimSpace(r.cfg.Logging.Format) != "" {
		format = r.cfg.Logging.Format
	}
	handler, err := logging.NewHandler(file, format, level, false)
	if err != nil {
		_ = file.Close()
		return base, "", nil, err
	}
	return logging.TeeLogger(base, handler), path, file, nil
}

func (r *RunLogger) filename(runID, videoName string, started time.Time) string {
	timestamp := started.UTC().Format("20060102T150405")
	slug := sanitizeSlug(videoName)
	if slug == "" {
		slug = "untitled"
	}
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s-%s.log", timestamp, slug, short)
}

func sanitizeSlug(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(unicode.ToLower(r))
			lastDash = false
		default:
			if !lastDash {
				builder.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(builder.String(), "-")
}
