package workflow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"video2notes/internal/config"
	"video2notes/internal/runconfig"
	"video2notes/internal/stage"
)

// Stage names, in execution order.
const (
	StageSplit         = "split"
	StagePreprocess    = "preprocess"
	StageExtractSlides = "extract-slides"
	StageTranscribe    = "transcribe"
	StageGenerateNotes = "generate-notes"
	StageLabelSpeakers = "label-speakers"
	StageRefineNotes   = "refine-notes"
)

// StageSet bundles the concrete adapters the manager orchestrates. A nil
// adapter skips its stage.
type StageSet struct {
	Split         stage.Adapter
	Preprocess    stage.Adapter
	ExtractSlides stage.Adapter
	Transcribe    stage.Adapter
	GenerateNotes stage.Adapter
	LabelSpeakers stage.Adapter
	RefineNotes   stage.Adapter
}

type stageDef struct {
	name    string
	percent int
	adapter func(StageSet) stage.Adapter
	kind    func(runconfig.RunConfig, *config.Config) StageKind
	enabled func(runconfig.RunConfig) (bool, string)
}

func always(runconfig.RunConfig) (bool, string) { return true, "" }

func automatic(runconfig.RunConfig, *config.Config) StageKind { return KindAutomatic }

var pipeline = []stageDef{
	{
		name:    StageSplit,
		percent: 5,
		adapter: func(s StageSet) stage.Adapter { return s.Split },
		kind:    automatic,
		enabled: func(rc runconfig.RunConfig) (bool, string) { return rc.DoSplit, "do_split is false" },
	},
	{
		name:    StagePreprocess,
		percent: 15,
		adapter: func(s StageSet) stage.Adapter { return s.Preprocess },
		kind: func(rc runconfig.RunConfig, _ *config.Config) StageKind {
			if rc.SkipROI {
				return KindAutomatic
			}
			return KindInteractive
		},
		enabled: always,
	},
	{
		name:    StageExtractSlides,
		percent: 30,
		adapter: func(s StageSet) stage.Adapter { return s.ExtractSlides },
		kind: func(_ runconfig.RunConfig, cfg *config.Config) StageKind {
			if cfg != nil && cfg.Workflow.AutoAcceptSlides {
				return KindAutomatic
			}
			return KindInteractive
		},
		enabled: always,
	},
	{
		name:    StageTranscribe,
		percent: 50,
		adapter: func(s StageSet) stage.Adapter { return s.Transcribe },
		kind:    automatic,
		enabled: always,
	},
	{
		name:    StageGenerateNotes,
		percent: 70,
		adapter: func(s StageSet) stage.Adapter { return s.GenerateNotes },
		kind:    automatic,
		enabled: always,
	},
	{
		name:    StageLabelSpeakers,
		percent: 80,
		adapter: func(s StageSet) stage.Adapter { return s.LabelSpeakers },
		kind:    func(runconfig.RunConfig, *config.Config) StageKind { return KindInteractive },
		enabled: func(rc runconfig.RunConfig) (bool, string) {
			return rc.DoLabelSpeakers, "do_label_speakers is false"
		},
	},
	{
		name:    StageRefineNotes,
		percent: 90,
		adapter: func(s StageSet) stage.Adapter { return s.RefineNotes },
		kind:    automatic,
		enabled: func(rc runconfig.RunConfig) (bool, string) { return rc.DoRefineNotes, "do_refine_notes is false" },
	},
}

// StageNames lists every stage in execution order.
func StageNames() []string {
	names := make([]string, len(pipeline))
	for i, def := range pipeline {
		names[i] = def.name
	}
	return names
}

// buildPlan resolves the stage list for one run. Stages that are disabled by
// the run configuration or have no adapter are marked skipped.
func buildPlan(set StageSet, rc runconfig.RunConfig, cfg *config.Config) ([]StageState, []stage.Adapter) {
	states := make([]StageState, len(pipeline))
	adapters := make([]stage.Adapter, len(pipeline))
	for i, def := range pipeline {
		st := StageState{
			Name:        def.name,
			Label:       StageLabel(def.name),
			Kind:        def.kind(rc, cfg),
			Status:      StagePending,
			BasePercent: def.percent,
		}
		adapter := def.adapter(set)
		if ok, reason := def.enabled(rc); !ok {
			st.Status = StageSkipped
			st.SkipReason = reason
		} else if adapter == nil {
			st.Status = StageSkipped
			st.SkipReason = "no adapter registered"
		}
		states[i] = st
		adapters[i] = adapter
	}
	return states, adapters
}

// overallPercent maps a stage-relative percentage onto the run's progress,
// between the stage's base and the next stage's base.
func overallPercent(index, stagePercent int) int {
	if index < 0 || index >= len(pipeline) {
		return 0
	}
	base := pipeline[index].percent
	next := 100
	if index+1 < len(pipeline) {
		next = pipeline[index+1].percent
	}
	stagePercent = min(max(stagePercent, 0), 100)
	return base + (next-base)*stagePercent/100
}

// StageLabel renders a stage name for display ("extract-slides" becomes
// "Extract Slides").
func StageLabel(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "-", " "))
	if name == "" {
		return ""
	}
	// Casers are stateful and must not be shared between goroutines.
	return cases.Title(language.English).String(name)
}
