package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"video2notes/internal/config"
	"video2notes/internal/daemon"
	"video2notes/internal/logging"
	"video2notes/internal/notes"
	"video2notes/internal/preprocess"
	"video2notes/internal/runstore"
	"video2notes/internal/slides"
	"video2notes/internal/transcription"
	"video2notes/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the video2notes daemon in the foreground",
		Long: "Run the daemon that executes pipeline runs, serves the HTTP API " +
			"and, when enabled, watches the inbox directory for new videos.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := runstore.Open(cfg)
	if err != nil {
		logger.Error("open run store", logging.Error(err))
		return err
	}

	manager := workflow.NewManager(cfg, buildStages(cfg), logger, workflow.WithArchive(store))

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	logger.Info("video2notes daemon listening",
		logging.String("api_bind", d.Addr()),
		logging.String("config_path", ctx.configPath),
	)

	<-signalCtx.Done()
	logger.Info("video2notes daemon shutting down")
	return nil
}

// buildStages wires the concrete stage adapters for a daemon process.
func buildStages(cfg *config.Config) workflow.StageSet {
	return workflow.StageSet{
		Split:         preprocess.NewSplitter(cfg),
		Preprocess:    preprocess.NewPreprocessor(cfg),
		ExtractSlides: slides.NewExtractor(cfg),
		Transcribe:    transcription.NewTranscriber(cfg),
		GenerateNotes: notes.NewGenerator(),
		LabelSpeakers: notes.NewSpeakerLabeler(cfg),
		RefineNotes:   notes.NewRefiner(cfg),
	}
}

