package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/bbureau12/echonet/internal/asr"
	"github.com/bbureau12/echonet/internal/config"
	"github.com/bbureau12/echonet/internal/httpapi"
	"github.com/bbureau12/echonet/internal/providers"
	"github.com/bbureau12/echonet/internal/repository"
	"github.com/bbureau12/echonet/internal/server"
	"github.com/bbureau12/echonet/internal/service"
	"github.com/bbureau12/echonet/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db, logger); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	targets := repository.NewTargetRepository(db)
	settings := repository.NewSettingRepository(db)

	state := service.NewStateService(settings)
	sessions := service.NewSessionManager(cfg.SessionTimeout)
	matcher := service.NewMatcher(cfg.CancelPhrases, cfg.ForwardStripTrigger)
	forwarder := service.NewForwarder(cfg.ForwardTimeout, logger)
	router := service.NewRouter(targets, sessions, matcher, forwarder, logger)

	// Reset listen mode to the configured default on startup.
	mode, err := state.ListenMode(ctx)
	if err != nil {
		logger.Error("read listen mode", slog.Any("error", err))
		os.Exit(1)
	}
	if mode != cfg.InitialListenMode {
		if err := state.SetListenMode(ctx, cfg.InitialListenMode, "startup", "Application startup default"); err != nil {
			logger.Error("set initial listen mode", slog.Any("error", err))
			os.Exit(1)
		}
	}

	registered, err := targets.All(ctx)
	if err != nil {
		logger.Error("load targets", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("loaded target directory", slog.Int("targets", len(registered)))

	api := httpapi.NewAPI(router, targets, sessions, state, cfg.CancelPhrases, logger)
	handler := httpapi.NewRouter(api, cfg.APIKey, cfg.AdminKey)
	srv := server.New(cfg, handler, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.ASREnabled {
		transcriber, err := providers.NewWhisperTranscriber(cfg.OpenAIAPIKey, "", "auto")
		if err != nil {
			logger.Error("asr transcriber", slog.Any("error", err))
			os.Exit(1)
		}
		worker := asr.NewWorker(router, state, asr.NopAudioSource{}, transcriber, cfg.SourceID, cfg.Room, logger)
		g.Go(func() error { return worker.Run(gctx) })
		logger.Info("asr worker started", slog.String("source_id", cfg.SourceID))
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}
