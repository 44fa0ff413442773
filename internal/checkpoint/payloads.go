package checkpoint

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which prompt/resolution contract a checkpoint follows.
type Kind string

const (
	KindROI      Kind = "roi"
	KindSlides   Kind = "slides"
	KindSpeakers Kind = "speakers"
)

// ROIPrompt asks the user to mark the slide region on a reference frame.
type ROIPrompt struct {
	FramePath string  `json:"frame_path"`
	Timestamp float64 `json:"timestamp"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// ROIResolution is either the full frame or an explicit slide rectangle,
// plus optional speaker and subtitle regions that are blanked before slides
// are compared.
type ROIResolution struct {
	FullFrame bool  `json:"full_frame,omitempty"`
	Slide     []int `json:"slide,omitempty"`
	Speaker   []int `json:"speaker,omitempty"`
	Subtitle  []int `json:"subtitle,omitempty"`
}

// Masks returns the named mask regions that were given, keyed "speaker" and
// "subtitle".
func (r ROIResolution) Masks() map[string][4]int {
	out := map[string][4]int{}
	for name, rect := range map[string][]int{"speaker": r.Speaker, "subtitle": r.Subtitle} {
		if len(rect) == 4 {
			out[name] = [4]int{rect[0], rect[1], rect[2], rect[3]}
		}
	}
	return out
}

// Rect returns the chosen rectangle as x, y, w, h. A full-frame answer maps to
// the supplied frame dimensions.
func (r ROIResolution) Rect(width, height int) [4]int {
	if r.FullFrame || len(r.Slide) != 4 {
		return [4]int{0, 0, width, height}
	}
	return [4]int{r.Slide[0], r.Slide[1], r.Slide[2], r.Slide[3]}
}

// SlideCandidate is one deduplicated slide offered for curation.
type SlideCandidate struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	ImagePath string  `json:"image_path"`
	OCRText   string  `json:"ocr_text"`
}

type SlidesPrompt struct {
	Slides []SlideCandidate `json:"slides"`
}

// SlideSelection lists the candidate indices to keep plus terms to bias
// transcription with.
type SlideSelection struct {
	Accepted   []int    `json:"accepted"`
	Vocabulary []string `json:"vocabulary,omitempty"`
}

type SpeakerSample struct {
	Path  string  `json:"path"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type SpeakerCandidate struct {
	ID      string          `json:"id"`
	Samples []SpeakerSample `json:"samples"`
}

type SpeakersPrompt struct {
	Speakers []SpeakerCandidate `json:"speakers"`
}

// SpeakerNames maps diarization ids to display names.
type SpeakerNames struct {
	Names map[string]string `json:"names"`
}

// Name returns the label for id, falling back to id itself.
func (s SpeakerNames) Name(id string) string {
	if name, ok := s.Names[id]; ok && name != "" {
		return name
	}
	return id
}

// Decode unmarshals a resolution payload into out.
func Decode(payload json.RawMessage, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode checkpoint resolution: %w", err)
	}
	return nil
}

// checkAgainstPrompt applies the constraints a static schema cannot express
// because they depend on the prompt that was shown.
func checkAgainstPrompt(kind Kind, prompt, payload json.RawMessage) error {
	switch kind {
	case KindSlides:
		var p SlidesPrompt
		var sel SlideSelection
		if err := json.Unmarshal(prompt, &p); err != nil {
			return nil
		}
		if err := json.Unmarshal(payload, &sel); err != nil {
			return err
		}
		for _, idx := range sel.Accepted {
			if idx >= len(p.Slides) {
				return fmt.Errorf("accepted index %d out of range (have %d slides)", idx, len(p.Slides))
			}
		}
	case KindSpeakers:
		var p SpeakersPrompt
		var names SpeakerNames
		if err := json.Unmarshal(prompt, &p); err != nil {
			return nil
		}
		if err := json.Unmarshal(payload, &names); err != nil {
			return err
		}
		known := make(map[string]struct{}, len(p.Speakers))
		for _, sp := range p.Speakers {
			known[sp.ID] = struct{}{}
		}
		for id := range names.Names {
			if _, ok := known[id]; !ok {
				return fmt.Errorf("unknown speaker %q", id)
			}
		}
	case KindROI:
		var p ROIPrompt
		var roi ROIResolution
		if err := json.Unmarshal(prompt, &p); err != nil || p.Width <= 0 || p.Height <= 0 {
			return nil
		}
		if err := json.Unmarshal(payload, &roi); err != nil {
			return err
		}
		if len(roi.Slide) == 4 && !roi.FullFrame {
			if roi.Slide[0]+roi.Slide[2] > p.Width || roi.Slide[1]+roi.Slide[3] > p.Height {
				return fmt.Errorf("slide region %v exceeds frame %dx%d", roi.Slide, p.Width, p.Height)
			}
		}
		for name, m := range roi.Masks() {
			if m[0]+m[2] > p.Width || m[1]+m[3] > p.Height {
				return fmt.Errorf("%s region %v exceeds frame %dx%d", name, m, p.Width, p.Height)
			}
		}
	}
	return nil
}
