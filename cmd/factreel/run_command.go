package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"factreel/internal/analysis"
	"factreel/internal/config"
	"factreel/internal/logging"
	"factreel/internal/pipeline"
	"factreel/internal/pipeline/events"
	"factreel/internal/runstore"
	"factreel/internal/services"
	"factreel/internal/services/diarize"
	"factreel/internal/services/fetch"
	"factreel/internal/services/ffmpeg"
	"factreel/internal/services/llm"
	"factreel/internal/services/tts"
	"factreel/internal/stagecache"
	"factreel/internal/workspace"
)

type runFlags struct {
	stages         []string
	from           string
	to             string
	contentRoot    string
	concurrency    int
	maxRetries     int
	retryBaseDelay int
	force          bool
	dryRun         bool
}

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <source-url>",
		Short: "Run the processing pipeline for one source video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			applyRunOverrides(cfg, flags)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return executeRun(ctx, cmd, cfg, args[0], flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.stages, "stages", nil, "Comma-separated stage subset to run")
	cmd.Flags().StringVar(&flags.from, "from", "", "First stage of the range to run")
	cmd.Flags().StringVar(&flags.to, "to", "", "Last stage of the range to run")
	cmd.Flags().StringVar(&flags.contentRoot, "content-root", "", "Override the episode content root")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Worker count for the voice and clip stages")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", 0, "Retry attempts for external tool calls")
	cmd.Flags().IntVar(&flags.retryBaseDelay, "retry-base-delay", 0, "Base retry delay in seconds")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Re-run selected stages even when outputs exist")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Report the stage plan without executing")

	return cmd
}

func applyRunOverrides(cfg *config.Config, flags *runFlags) {
	if root := strings.TrimSpace(flags.contentRoot); root != "" {
		cfg.Paths.ContentRoot = root
	}
	if flags.concurrency > 0 {
		cfg.Concurrency.TTSWorkers = flags.concurrency
		cfg.Concurrency.ClipWorkers = flags.concurrency
	}
	if flags.maxRetries > 0 {
		cfg.Retry.MaxAttempts = flags.maxRetries
	}
	if flags.retryBaseDelay > 0 {
		cfg.Retry.BaseDelaySeconds = flags.retryBaseDelay
	}
}

func executeRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, source string, flags *runFlags) error {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	fetcher := fetch.NewService(fetch.Config{
		Binary:         cfg.Downloader.Binary,
		TimeoutSeconds: cfg.Downloader.TimeoutSeconds,
	})

	ref, err := resolveEpisode(ctx, fetcher, source)
	if err != nil {
		return err
	}

	ws, err := workspace.New(cfg.Paths.ContentRoot, ref)
	if err != nil {
		return err
	}
	if err := ws.Ensure(); err != nil {
		return err
	}
	lock, err := ws.Acquire()
	if err != nil {
		return err
	}
	defer lock.Release()

	sessionID := pipeline.NewSessionID()
	logger = logging.WithSessionID(logger, sessionID)

	var emitter *events.Emitter
	if !flags.dryRun {
		emitter, err = events.NewEmitter(filepath.Join(ws.Dir(), "Logs"), sessionID)
		if err != nil {
			return err
		}
		defer emitter.Close()
	}

	cache := stagecache.New(ws, logger)
	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		FilesURL:       cfg.LLM.FilesURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	rules, err := loadAnalysisRules(cfg.Paths.AnalysisRulesPath)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Config:   cfg,
		Work:     ws,
		Cache:    cache,
		Fetcher:  fetcher,
		Diarizer: diarize.NewService(diarize.Config{
			Binary:         cfg.Diarizer.Binary,
			Model:          cfg.Diarizer.Model,
			Language:       cfg.Diarizer.Language,
			TimeoutSeconds: cfg.Diarizer.TimeoutSeconds,
		}),
		Speech: tts.NewClient(tts.Config{
			APIKey:         cfg.TTS.APIKey,
			BaseURL:        cfg.TTS.BaseURL,
			Model:          cfg.TTS.Model,
			Voice:          cfg.TTS.Voice,
			TimeoutSeconds: cfg.TTS.TimeoutSeconds,
		}),
		Video:     ffmpeg.NewService(ffmpeg.Config{}),
		Analyzer:  analysis.NewController(llmClient, cache, cfg.Analysis, rules, ref.Label, logger),
		Logger:    logger,
		Emitter:   emitter,
		SessionID: sessionID,
	})

	opts := pipeline.Options{
		Stages: flags.stages,
		From:   flags.from,
		To:     flags.to,
		Force:  flags.force,
		DryRun: flags.dryRun,
	}

	report, runErr := runner.Run(ctx, opts)
	if !flags.dryRun {
		recordRun(cfg, logger, source, report, runErr)
	}
	printReport(cmd, report, flags.dryRun)
	return runErr
}

// resolveEpisode derives the workspace label, probing remote sources for
// their metadata and naming local audio files after their basename.
func resolveEpisode(ctx context.Context, fetcher *fetch.Service, source string) (workspace.EpisodeRef, error) {
	if info, err := os.Stat(source); err == nil && info.Mode().IsRegular() {
		title := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		return workspace.NewEpisodeRef(source, "", title)
	}
	meta, err := fetcher.Probe(ctx, source)
	if err != nil {
		return workspace.EpisodeRef{}, err
	}
	return workspace.NewEpisodeRef(source, meta.ChannelName(), meta.Title)
}

func loadAnalysisRules(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "cli", "rules",
			fmt.Sprintf("read analysis rules %s", path), err)
	}
	return string(data), nil
}

// recordRun persists the run outcome to the history store. History
// failures are logged, never fatal.
func recordRun(cfg *config.Config, logger *slog.Logger, source string, report *pipeline.Report, runErr error) {
	store, err := runstore.Open(filepath.Join(cfg.Paths.LogDir, "history.db"))
	if err != nil {
		logger.Warn("run history unavailable", logging.Args(logging.Error(err))...)
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.StartRun(ctx, report.SessionID, source, report.Episode); err != nil {
		logger.Warn("record run failed", logging.Args(logging.Error(err))...)
		return
	}
	for _, result := range report.Results {
		if result.Status == pipeline.StatusNotRun {
			continue
		}
		err := store.RecordStage(ctx, runstore.StageRecord{
			SessionID: report.SessionID,
			Stage:     result.Stage,
			Status:    string(result.Status),
			Duration:  result.Duration,
			Error:     result.Error,
		})
		if err != nil {
			logger.Warn("record stage failed", logging.Args(logging.Error(err))...)
		}
	}
	outcome := "succeeded"
	switch {
	case runErr != nil && services.ExitCode(runErr) == services.ExitCancelled:
		outcome = "cancelled"
	case runErr != nil:
		outcome = "failed"
	}
	if err := store.FinishRun(ctx, report.SessionID, outcome); err != nil {
		logger.Warn("finish run failed", logging.Args(logging.Error(err))...)
	}
}

func printReport(cmd *cobra.Command, report *pipeline.Report, dryRun bool) {
	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, "Plan (dry run):")
	} else {
		fmt.Fprintf(out, "Session %s (%s):\n", report.SessionID, report.Episode)
	}

	rows := make([][]string, 0, len(report.Results))
	for _, result := range report.Results {
		duration := ""
		if result.Duration > 0 {
			duration = result.Duration.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{result.Stage, string(result.Status), duration, result.Error})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Status", "Duration", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))

	if !dryRun && report.Final != "" && workspace.Exists(report.Final) {
		fmt.Fprintf(out, "Final video: %s\n", report.Final)
	}
}
