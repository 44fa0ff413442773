package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"video2notes/internal/config"
	"video2notes/internal/logging"
	"video2notes/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "video2notes.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleHandlerRendersComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	handler, err := logging.NewHandler(&buf, "console", slog.LevelInfo, false)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	logger := logging.NewComponentLogger(slog.New(handler), "workflow")
	logger.Info("stage started", logging.String(logging.FieldStage, "transcribe"), logging.String("note", "two words"))

	line := buf.String()
	for _, fragment := range []string{"INFO", "workflow: stage started", "stage=transcribe", `note="two words"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should render as prefix only: %q", line)
	}
}

func TestJSONHandlerUsesShortKeys(t *testing.T) {
	var buf bytes.Buffer
	handler, err := logging.NewHandler(&buf, "json", slog.LevelInfo, false)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	slog.New(handler).Warn("careful")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["level"] != "warn" {
		t.Fatalf("unexpected level %v", decoded["level"])
	}
	if _, ok := decoded["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", decoded)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsRunFields(t *testing.T) {
	var buf bytes.Buffer
	handler, _ := logging.NewHandler(&buf, "console", slog.LevelInfo, false)
	ctx := services.WithStage(services.WithRunID(context.Background(), "run-7"), "refine-notes")

	logging.WithContext(ctx, slog.New(handler)).Info("tagged")
	if !strings.Contains(buf.String(), "run_id=run-7") || !strings.Contains(buf.String(), "stage=refine-notes") {
		t.Fatalf("expected context fields, got %q", buf.String())
	}
}

func TestTeeLoggerDuplicatesOutput(t *testing.T) {
	var primary, secondary bytes.Buffer
	base, _ := logging.NewHandler(&primary, "console", slog.LevelInfo, false)
	extra, _ := logging.NewHandler(&secondary, "json", slog.LevelDebug, false)

	logger := logging.TeeLogger(slog.New(base), extra)
	logger.Debug("only json")
	logger.Info("both")

	if strings.Contains(primary.String(), "only json") {
		t.Fatal("console handler should drop debug records")
	}
	if !strings.Contains(secondary.String(), "only json") || !strings.Contains(secondary.String(), "both") {
		t.Fatalf("expected both records in secondary, got %q", secondary.String())
	}
	if !strings.Contains(primary.String(), "both") {
		t.Fatalf("expected info record in primary, got %q", primary.String())
	}
}
