package whisperx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Word struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
}

// Segment is one sentence-level span. Speaker is set only when diarization ran.
type Segment struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Words   []Word  `json:"words,omitempty"`
}

// Transcript mirrors the JSON document WhisperX writes with --output_format json.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// LoadSegments reads a WhisperX JSON document and returns its segments.
func LoadSegments(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var doc Transcript
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse whisperx json %s: %w", filepath.Base(path), err)
	}
	return doc.Segments, nil
}

// jsonPathFor is where WhisperX writes the transcript of source inside dir.
func jsonPathFor(source, dir string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, stem+".json")
}
