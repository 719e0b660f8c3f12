package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/killallgit/voxlog/api"
	"github.com/killallgit/voxlog/api/types"
	"github.com/killallgit/voxlog/internal/services/cleanup"
	"github.com/killallgit/voxlog/internal/services/orchestrator"
	"github.com/killallgit/voxlog/internal/services/processor"
	"github.com/killallgit/voxlog/internal/services/telegram"
	"github.com/killallgit/voxlog/internal/services/transcription"
	"github.com/killallgit/voxlog/internal/services/workers"
	"github.com/killallgit/voxlog/pkg/command"
	"github.com/killallgit/voxlog/pkg/config"
	"github.com/killallgit/voxlog/pkg/download"
	"github.com/killallgit/voxlog/pkg/ffmpeg"
	"github.com/spf13/cobra"
)

const eventQueueSize = 64

var (
	serverHost string
	serverPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voice journaling daemon",
	Long: `Start the voxlog daemon with the configured settings.

The daemon long-polls Telegram for voice notes and commands, recovers
sessions interrupted by a previous run, transcribes finished sessions and
runs the narrative pipeline on request. When server.enabled is set the
read-only status API is served alongside.

Example:
  voxlog serve
  voxlog serve --port 9090
  voxlog serve --config /etc/voxlog/settings.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().StringVar(&serverHost, "host", "", "status API host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "status API port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	// Use flag values if provided
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	if err := cfg.ValidateForDaemon(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveDaemon(ctx, cfg)
}

// serveDaemon wires every component and blocks until ctx is cancelled or polling fails
func serveDaemon(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()
	st.reconcile(ctx)

	sessionSvc, err := st.newSessionService(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session names: %w", err)
	}

	ff := ffmpeg.New(cfg.Transcription.FFmpegPath, cfg.Transcription.FFprobePath, cfg.Transcription.Timeout)
	if err := ff.ValidateBinaries(); err != nil {
		log.Printf("[WARN] %v", err)
	}

	whisper := transcription.NewWhisperBackend(transcription.WhisperConfig{
		BinaryPath: cfg.Transcription.WhisperPath,
		ModelPath:  cfg.Transcription.ModelPath,
		Language:   cfg.Transcription.Language,
		Threads:    cfg.Transcription.Threads,
		Timeout:    cfg.Transcription.Timeout,
		TempDir:    cfg.Storage.TempDir,
	}, ff, command.ExecRunner{})
	if !whisper.IsReady() {
		log.Printf("[WARN] whisper.cpp is not ready (binary or model %s missing), transcription will be refused", cfg.Transcription.ModelPath)
	}

	transcriber := transcription.NewService(sessionSvc, st.files, whisper)
	proc := processor.NewService(st.files, processor.Config{
		PipelineCommand: cfg.Processing.PipelineCommand,
		DefaultProvider: cfg.Processing.DefaultProvider,
		Timeout:         cfg.Processing.Timeout,
	}, command.ExecRunner{})

	downloadOpts := download.DefaultOptions()
	downloadOpts.MaxSize = cfg.Storage.MaxAudioSize
	downloadOpts.UserAgent = "voxlog/" + Version
	downloader := download.NewDownloader(downloadOpts)

	bot, err := telegram.Connect(cfg.Telegram.BotToken, cfg.Telegram.Debug, telegram.Config{
		AllowedChatID: cfg.Telegram.AllowedChatID,
		PollTimeout:   cfg.Telegram.PollTimeout,
		SendRate:      cfg.Telegram.SendRate,
		SendBurst:     cfg.Telegram.SendBurst,
	}, downloader)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Sessions:    sessionSvc,
		Layout:      st.files,
		Transcriber: transcriber,
		Processor:   proc,
		Messenger:   bot,
		Fetcher:     bot,
		Prober:      ff,
	}, orchestrator.Config{
		TempDir:            cfg.Storage.TempDir,
		MaxAudioSize:       cfg.Storage.MaxAudioSize,
		StalenessThreshold: cfg.Recovery.StalenessThreshold,
	})

	if orphans, err := orch.RecoverOrphans(ctx); err != nil {
		log.Printf("[WARN] Orphan detection failed: %v", err)
	} else if len(orphans) > 0 {
		log.Printf("[INFO] Marked %d session(s) as interrupted", len(orphans))
	}

	worker := workers.NewWorker("events", orch, eventQueueSize)
	worker.Start(ctx)
	defer worker.Stop()

	sweeper := cleanup.NewService(cfg.Storage.TempDir, cfg.Storage.MaxTempAge, cfg.Storage.CleanupInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.Server.Enabled {
		server, err := startStatusServer(cfg, &types.Dependencies{
			DB:       st.db,
			Sessions: sessionSvc,
			Outputs:  proc,
			Queue:    worker,
			Build:    types.BuildInfo{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime},
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("[WARN] Status API forced to shutdown: %v", err)
			}
		}()
	}

	log.Printf("[INFO] voxlog %s listening for chat %d", Version, cfg.Telegram.AllowedChatID)
	err = bot.Run(ctx, worker.Submit)
	log.Printf("[INFO] Shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func startStatusServer(cfg *config.Config, deps *types.Dependencies) (*api.Server, error) {
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(api.Options{
		Address:      address,
		APIToken:     cfg.Server.APIToken,
		RateLimit:    cfg.Server.RateLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, deps)
	if err := server.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize status API: %w", err)
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] Status API stopped: %v", err)
		}
	}()

	log.Printf("[INFO] Status API listening on %s", address)
	return server, nil
}
