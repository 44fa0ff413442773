package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
	InboxDir string `toml:"inbox_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Workflow contains orchestrator timing and buffering knobs.
type Workflow struct {
	StopGraceSeconds         int  `toml:"stop_grace_seconds"`
	CheckpointTimeoutSeconds int  `toml:"checkpoint_timeout_seconds"`
	EventBuffer              int  `toml:"event_buffer"`
	LogTailLines             int  `toml:"log_tail_lines"`
	AutoAcceptSlides         bool `toml:"auto_accept_slides"`
}

// Slides contains frame sampling and deduplication settings.
type Slides struct {
	// DedupThreshold is the minimum perceptual-hash Hamming distance between a
	// frame and the last accepted slide for the frame to count as a new slide.
	// Fades and animated builds can over- or under-segment; tune per source.
	DedupThreshold int     `toml:"dedup_threshold"`
	SampleFPS      float64 `toml:"sample_fps"`
	HashWorkers    int     `toml:"hash_workers"`
	OCREnabled     bool    `toml:"ocr_enabled"`
	OCRLanguage    string  `toml:"ocr_language"`
}

// WhisperX contains transcription settings.
type WhisperX struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
	Diarize     bool   `toml:"diarize"`
	Language    string `toml:"language"`
}

// LLM contains the OpenRouter-compatible connection used for note refinement.
type LLM struct {
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	Model          string   `toml:"model"`
	AllowedModels  []string `toml:"allowed_models"`
	Referer        string   `toml:"referer"`
	Title          string   `toml:"title"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Watcher controls automatic runs for videos dropped into paths.inbox_dir.
type Watcher struct {
	Enabled       bool `toml:"enabled"`
	SettleSeconds int  `toml:"settle_seconds"`
}

// Config encapsulates all configuration values for video2notes.
//
// Configuration sections by subsystem:
//   - Paths: working, log and inbox directories plus the API bind address
//   - Workflow: stop grace period, checkpoint timeout, event buffer size
//   - Slides: frame sampling and deduplication
//   - WhisperX: transcription and diarization
//   - LLM: note refinement
//   - Logging: log format and level
//   - Watcher: inbox auto-start
type Config struct {
	Paths    Paths    `toml:"paths"`
	Workflow Workflow `toml:"workflow"`
	Slides   Slides   `toml:"slides"`
	WhisperX WhisperX `toml:"whisperx"`
	LLM      LLM      `toml:"llm"`
	Logging  Logging  `toml:"logging"`
	Watcher  Watcher  `toml:"watcher"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: unknown keys:\n%s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("video2notes.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon and CLI write into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir}
	if c.Watcher.Enabled {
		dirs = append(dirs, c.Paths.InboxDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunStorePath is the SQLite database holding run history.
func (c *Config) RunStorePath() string {
	return filepath.Join(c.Paths.LogDir, "runs.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "video2notes.lock")
}

// StopGrace is how long a stage process gets to exit after a stop request.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Workflow.StopGraceSeconds) * time.Second
}

// CheckpointTimeout returns zero when checkpoints wait indefinitely.
func (c *Config) CheckpointTimeout() time.Duration {
	return time.Duration(c.Workflow.CheckpointTimeoutSeconds) * time.Second
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// ModelAllowed reports whether model may be requested for refinement. An empty
// allow list permits any model.
func (c *Config) ModelAllowed(model string) bool {
	model = strings.TrimSpace(model)
	if model == "" || len(c.LLM.AllowedModels) == 0 {
		return true
	}
	for _, allowed := range c.LLM.AllowedModels {
		if strings.EqualFold(allowed, model) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
