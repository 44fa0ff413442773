package config

import "runtime"

// MaxStopGraceSeconds keeps a blocking stop request inside the API write
// timeout.
const MaxStopGraceSeconds = 20

const (
	defaultConfigPath               = "~/.config/video2notes/config.toml"
	defaultWorkDir                  = "~/.local/share/video2notes/work"
	defaultLogDir                   = "~/.local/share/video2notes/logs"
	defaultInboxDir                 = "~/.local/share/video2notes/inbox"
	defaultAPIBind                  = "127.0.0.1:7488"
	defaultStopGraceSeconds         = 10
	defaultEventBuffer              = 500
	defaultLogTailLines             = 20
	defaultDedupThreshold           = 13
	defaultSampleFPS                = 1.0
	defaultOCRLanguage              = "eng"
	defaultWhisperXModel            = "large-v3"
	defaultWhisperXVADMethod        = "silero"
	defaultLLMBaseURL               = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                 = "openai/gpt-4o-2024-08-06"
	defaultLLMReferer               = "https://github.com/video2notes/video2notes"
	defaultLLMTitle                 = "video2notes"
	defaultLLMTimeoutSeconds        = 120
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultWatcherSettleSeconds     = 5
	defaultCheckpointTimeoutSeconds = 0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
			InboxDir: defaultInboxDir,
			APIBind:  defaultAPIBind,
		},
		Workflow: Workflow{
			StopGraceSeconds:         defaultStopGraceSeconds,
			CheckpointTimeoutSeconds: defaultCheckpointTimeoutSeconds,
			EventBuffer:              defaultEventBuffer,
			LogTailLines:             defaultLogTailLines,
		},
		Slides: Slides{
			DedupThreshold: defaultDedupThreshold,
			SampleFPS:      defaultSampleFPS,
			HashWorkers:    runtime.NumCPU(),
			OCRLanguage:    defaultOCRLanguage,
		},
		WhisperX: WhisperX{
			Model:     defaultWhisperXModel,
			VADMethod: defaultWhisperXVADMethod,
			Diarize:   true,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Watcher: Watcher{
			SettleSeconds: defaultWatcherSettleSeconds,
		},
	}
}
