// Package workflow runs one video through the note-taking pipeline.
//
// The Manager owns at most one active Run. Start validates the run
// configuration, builds the fixed stage plan (split, preprocess,
// extract-slides, transcribe, generate-notes, label-speakers, refine-notes),
// marks disabled or unregistered stages as skipped and executes the rest on a
// background goroutine, one at a time. Stage adapters receive a copy of the
// artifacts produced so far and return an updated copy, which the manager
// commits under its lock.
//
// Progress reported by adapters is mapped onto an overall percentage using
// each stage's base percent and published on the events.Bus. Interactive
// stages park in waiting_input while a checkpoint is open; ResolveCheckpoint
// hands the user's answer to the checkpoint.Manager.
//
// Stop cancels the run context, calls the active adapter's Cancel and releases
// any open checkpoint. The run always ends cancelled, even when a stage does
// not return within the grace period. Terminal runs are archived through an
// Archive (the runstore in production) and every run writes its own log file
// under paths.log_dir/runs.
package workflow
