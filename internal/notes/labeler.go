package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/logging"
	"video2notes/internal/media"
	"video2notes/internal/services"
	"video2notes/internal/stage"
	"video2notes/internal/transcription"
)

const (
	labelStage = "label-speakers"

	samplesPerSpeaker = 3
	samplePadding     = 0.5
	maxSampleSeconds  = 60.0
	// lastUtteranceSeconds bounds the final utterance, which has no successor.
	lastUtteranceSeconds = 30.0

	labeledSuffix = "_with_speakernames.md"
	samplesDir    = "speaker_samples"
)

var (
	utteranceHeader = regexp.MustCompile(`\*\*(SPEAKER_\d{2}) \[([0-9:.]+)\]:\*\*`)
	relabelHeader   = regexp.MustCompile(`\*\*(SPEAKER_\d{2})( \[[0-9:.]+\]:\*\*)`)
)

// Utterance is one speaker paragraph found in generated notes.
type Utterance struct {
	Speaker string
	Start   float64
	End     float64
}

// SpeakerTurns lists the diarized speakers of a notes document in order of
// first appearance together with every utterance attributed to them.
type SpeakerTurns struct {
	Order      []string
	Utterances map[string][]Utterance
}

// ParseUtterances finds the SPEAKER_NN paragraph headers in markdown. Each
// utterance ends where the next begins.
func ParseUtterances(markdown string) SpeakerTurns {
	turns := SpeakerTurns{Utterances: make(map[string][]Utterance)}
	matches := utteranceHeader.FindAllStringSubmatch(markdown, -1)
	all := make([]Utterance, 0, len(matches))
	for _, m := range matches {
		start, err := ParseTime(m[2])
		if err != nil {
			continue
		}
		all = append(all, Utterance{Speaker: m[1], Start: start})
	}
	for i := range all {
		if i+1 < len(all) {
			all[i].End = all[i+1].Start
		} else {
			all[i].End = all[i].Start + lastUtteranceSeconds
		}
		spk := all[i].Speaker
		if _, seen := turns.Utterances[spk]; !seen {
			turns.Order = append(turns.Order, spk)
		}
		turns.Utterances[spk] = append(turns.Utterances[spk], all[i])
	}
	sort.SliceStable(turns.Order, func(i, j int) bool {
		return turns.Utterances[turns.Order[i]][0].Start < turns.Utterances[turns.Order[j]][0].Start
	})
	return turns
}

// SampleWindow pads an utterance and caps its length.
func SampleWindow(u Utterance) (start, duration float64) {
	start = u.Start - samplePadding
	if start < 0 {
		start = 0
	}
	end := u.End + samplePadding
	if end-start > maxSampleSeconds {
		end = start + maxSampleSeconds
	}
	return start, end - start
}

// Relabel rewrites SPEAKER_NN headers using names. Speakers without a
// non-blank name keep their id.
func Relabel(markdown string, names map[string]string) string {
	return relabelHeader.ReplaceAllStringFunc(markdown, func(match string) string {
		m := relabelHeader.FindStringSubmatch(match)
		name := strings.TrimSpace(names[m[1]])
		if name == "" {
			return match
		}
		return "**" + name + m[2]
	})
}

// LabeledPath returns where relabeled notes for notesPath are written.
func LabeledPath(notesPath string) string {
	return strings.TrimSuffix(notesPath, ".md") + labeledSuffix
}

// SpeakerLabeler is the label-speakers stage.
type SpeakerLabeler struct {
	runner *stage.Runner
	tools  media.Tools
}

// LabelerOption customizes a SpeakerLabeler.
type LabelerOption func(*SpeakerLabeler)

// WithLabelerTools replaces the media tools used to cut samples.
func WithLabelerTools(tools media.Tools) LabelerOption {
	return func(l *SpeakerLabeler) { l.tools = tools }
}

// NewSpeakerLabeler constructs the label-speakers adapter.
func NewSpeakerLabeler(cfg *config.Config, opts ...LabelerOption) *SpeakerLabeler {
	runner := stage.NewRunner(cfg.StopGrace(), cfg.Workflow.LogTailLines)
	l := &SpeakerLabeler{
		runner: runner,
		tools:  media.Tools{FFmpeg: cfg.FFmpegBinary(), FFprobe: cfg.FFprobeBinary(), Runner: runner},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SpeakerLabeler) Cancel() { l.runner.Cancel() }

// Execute writes <notes>_with_speakernames.md. Notes without diarized headers
// pass through unchanged.
func (l *SpeakerLabeler) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	l.runner.Reset()
	logger := in.Log()
	art := in.Artifacts.Clone()
	if art.NotesFile == "" {
		return stage.Outcome{}, services.Wrap(services.ErrNotFound, labelStage, "read notes", "no notes recorded for this run", nil)
	}
	data, err := os.ReadFile(art.NotesFile)
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, labelStage, "read notes", "", err)
	}
	markdown := string(data)

	turns := ParseUtterances(markdown)
	if len(turns.Order) == 0 {
		logger.Warn("no speaker headers found; skipping labeling", logging.String("notes", art.NotesFile))
		in.Report(100, "No diarized speakers to label")
		return stage.Outcome{Artifacts: art}, nil
	}

	audio, err := transcription.LocateAudio(art, in.Config.VideoPath)
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrNotFound, labelStage, "locate audio", "", err)
	}
	dir := filepath.Join(art.OutputDir, samplesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, labelStage, "create samples dir", "", err)
	}

	prompt := checkpoint.SpeakersPrompt{Speakers: make([]checkpoint.SpeakerCandidate, 0, len(turns.Order))}
	for i, speaker := range turns.Order {
		in.Report(i*80/len(turns.Order), "Cutting samples for "+speaker)
		candidate := checkpoint.SpeakerCandidate{ID: speaker}
		utterances := turns.Utterances[speaker]
		if len(utterances) > samplesPerSpeaker {
			utterances = utterances[:samplesPerSpeaker]
		}
		for n, u := range utterances {
			start, duration := SampleWindow(u)
			dest := filepath.Join(dir, fmt.Sprintf("%s_%d.wav", speaker, n))
			if err := l.tools.ExtractClip(ctx, audio, start, duration, dest); err != nil {
				return stage.Outcome{}, services.StageFailure(labelStage, "cut sample", l.runner.Tail(), err)
			}
			candidate.Samples = append(candidate.Samples, checkpoint.SpeakerSample{
				Path:  dest,
				Start: start,
				End:   start + duration,
			})
		}
		prompt.Speakers = append(prompt.Speakers, candidate)
	}

	in.Report(80, fmt.Sprintf("Waiting for names of %d speakers", len(prompt.Speakers)))
	var names checkpoint.SpeakerNames
	if err := in.Ask(ctx, checkpoint.KindSpeakers, prompt, &names); err != nil {
		return stage.Outcome{}, err
	}

	dest := LabeledPath(art.NotesFile)
	if err := os.WriteFile(dest, []byte(Relabel(markdown, names.Names)), 0o644); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, labelStage, "write labeled notes", "", err)
	}
	labeled := 0
	for _, speaker := range turns.Order {
		if strings.TrimSpace(names.Names[speaker]) != "" {
			labeled++
		}
	}
	logger.Info("speakers labeled",
		logging.Int("speakers", len(turns.Order)),
		logging.Int("labeled", labeled),
		logging.String("notes", dest),
	)

	art.LabeledNotes = dest
	in.Report(100, fmt.Sprintf("Labeled %d of %d speakers", labeled, len(turns.Order)))
	return stage.Outcome{Artifacts: art, Outputs: []string{dest}}, nil
}
