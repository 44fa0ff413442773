package deps

import "video2notes/internal/config"

// Binary names invoked by the pipeline.
const (
	UVXCommand       = "uvx"
	TesseractCommand = "tesseract"
)

// FFmpeg returns the requirements for media handling.
func FFmpeg(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Audio extraction, frame sampling, clips"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "Video dimensions and duration"},
	}
}

// WhisperX returns the transcription requirement.
func WhisperX() []Requirement {
	return []Requirement{
		{Name: "uvx", Command: UVXCommand, Description: "Runs WhisperX transcription and diarization"},
	}
}

// OCR returns the tesseract requirement; it is optional unless OCR is enabled.
func OCR(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "Tesseract", Command: TesseractCommand, Description: "OCR text for slide candidates", Optional: !cfg.Slides.OCREnabled},
	}
}

// Requirements lists every external binary the pipeline may call.
func Requirements(cfg *config.Config) []Requirement {
	reqs := FFmpeg(cfg)
	reqs = append(reqs, WhisperX()...)
	reqs = append(reqs, OCR(cfg)...)
	return reqs
}
