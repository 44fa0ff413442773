package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSlides(); err != nil {
		return err
	}
	if err := c.validateWhisperX(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Watcher.Enabled && c.Watcher.SettleSeconds <= 0 {
		return errors.New("watcher.settle_seconds must be positive when watcher.enabled is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.stop_grace_seconds": c.Workflow.StopGraceSeconds,
		"workflow.event_buffer":       c.Workflow.EventBuffer,
		"workflow.log_tail_lines":     c.Workflow.LogTailLines,
	}); err != nil {
		return err
	}
	if c.Workflow.StopGraceSeconds > MaxStopGraceSeconds {
		return fmt.Errorf("workflow.stop_grace_seconds must be at most %d, got %d", MaxStopGraceSeconds, c.Workflow.StopGraceSeconds)
	}
	if c.Workflow.CheckpointTimeoutSeconds < 0 {
		return errors.New("workflow.checkpoint_timeout_seconds must be >= 0 (0 waits indefinitely)")
	}
	return nil
}

func (c *Config) validateSlides() error {
	if c.Slides.DedupThreshold < 1 || c.Slides.DedupThreshold > 64 {
		return errors.New("slides.dedup_threshold must be between 1 and 64")
	}
	if c.Slides.SampleFPS <= 0 {
		return errors.New("slides.sample_fps must be positive")
	}
	if c.Slides.HashWorkers < 0 {
		return errors.New("slides.hash_workers must be >= 0")
	}
	return nil
}

func (c *Config) validateWhisperX() error {
	switch c.WhisperX.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("whisperx.vad_method must be silero or pyannote, got %q", c.WhisperX.VADMethod)
	}
	if c.WhisperX.VADMethod == "pyannote" && c.WhisperX.HFToken == "" {
		return errors.New("whisperx.hf_token must be set when whisperx.vad_method is pyannote")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if !c.ModelAllowed(c.LLM.Model) {
		return fmt.Errorf("llm.model %q is not listed in llm.allowed_models", c.LLM.Model)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
