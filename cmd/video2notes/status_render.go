package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"video2notes/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		text += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// runStatusKind maps a run or stage status string onto a display kind.
func runStatusKind(status string) statusKind {
	switch status {
	case "completed", "done":
		return statusOK
	case "waiting_input", "cancelled", "skipped":
		return statusWarn
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}

func renderDaemonStatus(status api.DaemonStatus, colorize bool) string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	if status.InboxDir != "" {
		kind, msg := statusInfo, "disabled"
		if status.Watching {
			kind, msg = statusOK, "watching "+status.InboxDir
		}
		lines = append(lines, renderStatusLine("Inbox", kind, msg, colorize))
	}
	lines = append(lines, renderStatusLine("Run store", statusInfo, status.RunStorePath, colorize))
	lines = append(lines, "")
	lines = append(lines, renderRunStatus(status.Run, colorize)...)
	return strings.Join(lines, "\n")
}

func renderRunStatus(run api.RunStatus, colorize bool) []string {
	lines := renderSectionHeader("Run", colorize)
	if run.Status == "idle" || run.RunID == "" {
		return append(lines, renderStatusLine("Status", statusInfo, "idle", colorize))
	}

	lines = append(lines,
		renderStatusLine("Run", statusInfo, run.RunID, colorize),
		renderStatusLine("Video", statusInfo, run.VideoPath, colorize),
		renderStatusLine("Status", runStatusKind(run.Status), fmt.Sprintf("%s (%d%%)", run.Status, run.Percent), colorize),
	)
	if run.CurrentStage != "" {
		lines = append(lines, renderStatusLine("Stage", statusInfo, run.CurrentStage, colorize))
	}
	if run.Message != "" {
		lines = append(lines, renderStatusLine("Message", statusInfo, run.Message, colorize))
	}
	if run.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, firstLine(run.Error), colorize))
	}
	if run.Artifacts != nil && run.Artifacts.OutputDir != "" {
		lines = append(lines, renderStatusLine("Output", statusInfo, run.Artifacts.OutputDir, colorize))
	}

	if len(run.Stages) > 0 {
		lines = append(lines, "", renderStageTable(run.Stages))
	}
	if run.Checkpoint != nil {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Checkpoint", colorize)...)
		lines = append(lines, renderCheckpoint(*run.Checkpoint, colorize)...)
	}
	if len(run.Log) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Recent output", colorize)...)
		lines = append(lines, run.Log...)
	}
	return lines
}

func renderStageTable(stages []api.StageStatus) string {
	rows := make([][]string, 0, len(stages))
	for _, st := range stages {
		detail := st.SkipReason
		if detail == "" && len(st.Outputs) > 0 {
			detail = strings.Join(st.Outputs, ", ")
		}
		rows = append(rows, []string{st.Label, st.Kind, st.Status, strconv.Itoa(st.BasePercent) + "%", detail})
	}
	return renderTable(
		[]string{"Stage", "Kind", "Status", "From", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderCheckpoint(cp api.CheckpointPrompt, colorize bool) []string {
	lines := []string{
		renderStatusLine("Stage", statusWarn, cp.Stage, colorize),
		renderStatusLine("Kind", statusInfo, cp.Kind, colorize),
		renderStatusLine("Opened", statusInfo, cp.OpenedAt, colorize),
	}
	if cp.Deadline != "" {
		lines = append(lines, renderStatusLine("Deadline", statusWarn, cp.Deadline, colorize))
	}
	if len(cp.Prompt) > 0 {
		lines = append(lines, statusIndent+"Prompt: "+string(cp.Prompt))
	}
	lines = append(lines, statusIndent+fmt.Sprintf("Answer with: video2notes resolve %s --data '<json>'", cp.Stage))
	return lines
}

func renderEvent(ev api.Event) string {
	stage := ev.Stage
	if stage == "" {
		stage = "-"
	}
	return fmt.Sprintf("%s %3d%% %-14s %s", ev.Timestamp, ev.Percent, stage, ev.Message)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
