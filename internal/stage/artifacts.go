package stage

// Artifacts records the files produced so far in a run. Stages receive a copy
// and return an updated copy in their Outcome.
type Artifacts struct {
	OutputDir      string   `json:"output_dir"`
	VideoPath      string   `json:"video_path"`
	VideoName      string   `json:"video_name"`
	Segments       []string `json:"segments,omitempty"`
	AudioPath      string   `json:"audio_path,omitempty"`
	ROIFile        string   `json:"roi_file,omitempty"`
	ROI            [4]int   `json:"roi"`
	Masks          [][4]int `json:"masks,omitempty"`
	FrameWidth     int      `json:"frame_width,omitempty"`
	FrameHeight    int      `json:"frame_height,omitempty"`
	SlidesDir      string   `json:"slides_dir,omitempty"`
	SlidesJSON     string   `json:"slides_json,omitempty"`
	VocabularyFile string   `json:"vocabulary_file,omitempty"`
	Vocabulary     []string `json:"vocabulary,omitempty"`
	TranscriptJSON string   `json:"transcript_json,omitempty"`
	NotesFile      string   `json:"notes_file,omitempty"`
	LabeledNotes   string   `json:"labeled_notes,omitempty"`
	RefinedNotes   string   `json:"refined_notes,omitempty"`
}

// Clone returns a deep copy.
func (a Artifacts) Clone() Artifacts {
	out := a
	out.Segments = append([]string(nil), a.Segments...)
	out.Vocabulary = append([]string(nil), a.Vocabulary...)
	out.Masks = append([][4]int(nil), a.Masks...)
	return out
}

// CurrentNotes is the most processed notes file available.
func (a Artifacts) CurrentNotes() string {
	if a.LabeledNotes != "" {
		return a.LabeledNotes
	}
	return a.NotesFile
}

// HasROI reports whether a slide region has been recorded.
func (a Artifacts) HasROI() bool {
	return a.ROI[2] > 0 && a.ROI[3] > 0
}
