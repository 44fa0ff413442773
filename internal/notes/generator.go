package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"video2notes/internal/logging"
	"video2notes/internal/services"
	"video2notes/internal/services/whisperx"
	"video2notes/internal/slides"
	"video2notes/internal/stage"
)

const (
	generateStage = "generate-notes"

	// slideLead places a slide ahead of speech that starts up to this many
	// seconds before the slide first appeared.
	slideLead = 1.0

	unknownSpeaker = "Unknown"
)

// Merge interleaves transcript segments and slides into Markdown.
func Merge(segments []whisperx.Segment, records []slides.SlideRecord) string {
	entries := append([]whisperx.Segment(nil), segments...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start < entries[j].Start })
	groups := groupSlides(records)

	var (
		lines     []string
		speaker   string
		paragraph []whisperx.Segment
		next      int
	)
	flush := func() {
		if len(paragraph) == 0 {
			return
		}
		lines = append(lines, fmt.Sprintf("**%s [%s]:**", speaker, FormatTime(paragraph[0].Start)))
		texts := make([]string, 0, len(paragraph))
		for _, seg := range paragraph {
			texts = append(texts, strings.TrimSpace(seg.Text))
		}
		lines = append(lines, strings.Join(texts, " ")+"\n")
		paragraph = paragraph[:0]
	}
	emitGroup := func(group []slides.SlideRecord) {
		for _, rec := range group {
			flush()
			lines = append(lines, fmt.Sprintf("![Screenshot](%s)\n", rec.ImagePath))
		}
	}

	for _, entry := range entries {
		for next < len(groups) && groups[next][0].Timestamp-slideLead <= entry.Start {
			emitGroup(groups[next])
			next++
		}
		who := strings.TrimSpace(entry.Speaker)
		if who == "" {
			who = unknownSpeaker
		}
		if who != speaker {
			flush()
			speaker = who
		}
		paragraph = append(paragraph, entry)
	}
	flush()
	for ; next < len(groups); next++ {
		emitGroup(groups[next])
	}
	return strings.Join(lines, "\n")
}

// groupSlides orders slides by timestamp and groups them by GroupID, groups
// ordered by their earliest slide.
func groupSlides(records []slides.SlideRecord) [][]slides.SlideRecord {
	sorted := append([]slides.SlideRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	index := make(map[int]int)
	var groups [][]slides.SlideRecord
	for _, rec := range sorted {
		pos, ok := index[rec.GroupID]
		if !ok {
			pos = len(groups)
			index[rec.GroupID] = pos
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], rec)
	}
	return groups
}

// Generator is the generate-notes stage.
type Generator struct{}

// NewGenerator constructs the generate-notes adapter.
func NewGenerator() *Generator { return &Generator{} }

// Cancel is a no-op; generation does not start external processes.
func (g *Generator) Cancel() {}

// Execute writes <name>_notes.md into the output directory.
func (g *Generator) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	art := in.Artifacts.Clone()
	if art.TranscriptJSON == "" {
		return stage.Outcome{}, services.Wrap(services.ErrNotFound, generateStage, "load transcript", "no transcript recorded for this run", nil)
	}
	segments, err := whisperx.LoadSegments(art.TranscriptJSON)
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, generateStage, "load transcript", "", err)
	}

	var records []slides.SlideRecord
	if art.SlidesJSON != "" {
		if records, err = slides.ReadRecords(art.SlidesJSON); err != nil {
			return stage.Outcome{}, services.Wrap(services.ErrStageExecution, generateStage, "load slides", "", err)
		}
	} else {
		in.Log().Warn("no slides recorded; notes will contain the transcript only")
	}
	if err := ctx.Err(); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrCancelled, generateStage, "merge", "", err)
	}

	in.Report(10, fmt.Sprintf("Merging %d segments with %d slides", len(segments), len(records)))
	markdown := Merge(segments, records)
	dest := filepath.Join(art.OutputDir, art.VideoName+"_notes.md")
	if err := os.WriteFile(dest, []byte(markdown), 0o644); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, generateStage, "write notes", "", err)
	}
	in.Log().Info("notes generated",
		logging.String("notes", dest),
		logging.Int("segments", len(segments)),
		logging.Int("slides", len(records)),
	)

	art.NotesFile = dest
	in.Report(100, "Notes written to "+filepath.Base(dest))
	return stage.Outcome{Artifacts: art, Outputs: []string{dest}}, nil
}
