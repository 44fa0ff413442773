package slides

// FrameSample is one sampled video frame in capture order.
type FrameSample struct {
	Index     int
	Timestamp float64
	Path      string
	Hash      Hash
}

// SlideRecord is an accepted slide. GroupID numbers slides in capture order
// starting at 0.
type SlideRecord struct {
	GroupID    int     `json:"group_id"`
	Timestamp  float64 `json:"timestamp"`
	Hash       Hash    `json:"hash"`
	ImagePath  string  `json:"image_path"`
	OCRText    string  `json:"ocr_text"`
	FrameIndex int     `json:"-"`
	SourcePath string  `json:"-"`
}

// Deduper is the streaming form of Deduplicate. Each offered frame is compared
// only with the most recently accepted slide.
type Deduper struct {
	threshold int
	last      Hash
	accepted  int
}

// NewDeduper returns a Deduper accepting a frame when its distance to the last
// accepted slide is at least threshold.
func NewDeduper(threshold int) *Deduper {
	return &Deduper{threshold: threshold}
}

// Offer returns the new SlideRecord and true when frame starts a new slide.
func (d *Deduper) Offer(frame FrameSample) (SlideRecord, bool) {
	if d.accepted > 0 && Distance(frame.Hash, d.last) < d.threshold {
		return SlideRecord{}, false
	}
	rec := SlideRecord{
		GroupID:    d.accepted,
		Timestamp:  frame.Timestamp,
		Hash:       frame.Hash,
		FrameIndex: frame.Index,
		SourcePath: frame.Path,
	}
	d.last = frame.Hash
	d.accepted++
	return rec, true
}

// Accepted reports how many slides have been accepted so far.
func (d *Deduper) Accepted() int { return d.accepted }

// Deduplicate reduces frames (in capture order) to the slides that differ from
// their predecessor slide by at least threshold bits.
func Deduplicate(frames []FrameSample, threshold int) []SlideRecord {
	d := NewDeduper(threshold)
	out := make([]SlideRecord, 0, len(frames)/4+1)
	for _, frame := range frames {
		if rec, ok := d.Offer(frame); ok {
			out = append(out, rec)
		}
	}
	return out
}
