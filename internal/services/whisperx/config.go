package whisperx

import "strings"

const (
	// UVXCommand launches WhisperX in a throwaway Python environment.
	UVXCommand = "uvx"

	DefaultModel      = "large-v3"
	VADMethodSilero   = "silero"
	VADMethodPyannote = "pyannote"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	PypiIndexURL      = "https://pypi.org/simple"

	cudaIndexURL   = "https://download.pytorch.org/whl/cu128"
	cpuComputeType = "float32"
)

// Config selects the model and runtime knobs for a transcription.
type Config struct {
	Model       string
	CUDAEnabled bool
	// VADMethod is "silero" (default) or "pyannote".
	VADMethod string
	HFToken   string
	Diarize   bool
	// Language is an ISO 639-1 code; empty lets WhisperX detect it.
	Language string
}

func (c Config) normalized() Config {
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = DefaultModel
	}
	switch strings.ToLower(strings.TrimSpace(c.VADMethod)) {
	case VADMethodPyannote:
		c.VADMethod = VADMethodPyannote
	default:
		c.VADMethod = VADMethodSilero
	}
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	return c
}

// wantsToken reports whether the Hugging Face token must reach WhisperX.
func (c Config) wantsToken() bool {
	return c.HFToken != "" && (c.Diarize || c.VADMethod == VADMethodPyannote)
}

// decoderFlags are passed on every run, in this order. The values favour
// accuracy over speed: wide beams, short VAD chunks and greedy temperature.
var decoderFlags = [][2]string{
	{"--batch_size", "4"},
	{"--output_format", "json"},
	{"--segment_resolution", "sentence"},
	{"--chunk_size", "15"},
	{"--vad_onset", "0.08"},
	{"--vad_offset", "0.07"},
	{"--beam_size", "10"},
	{"--best_of", "10"},
	{"--temperature", "0.0"},
	{"--patience", "1.0"},
}
