package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"aichat/internal/api"
	"aichat/internal/chat"
	"aichat/internal/config"
	"aichat/internal/imagegen"
	"aichat/internal/llm"
	"aichat/internal/store"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, falling back to info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	prefs, err := store.NewPrefStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open preference store")
	}
	defer prefs.Close()

	settings := llm.GenerationSettings{
		Temperature:     cfg.GenTemperature,
		TopK:            cfg.GenTopK,
		TopP:            cfg.GenTopP,
		MaxOutputTokens: cfg.GenMaxOutputTokens,
	}
	generator, err := llm.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, settings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create Gemini client")
	}
	defer generator.Close()

	images := imagegen.NewClient(cfg.ImageModelURL, cfg.ImageAPIToken, cfg.RequestTimeout, logger)

	manager := chat.NewManager(generator,
		chat.WithHistoryCap(cfg.HistoryCap),
		chat.WithRequestTimeout(cfg.RequestTimeout),
		chat.WithReveal(cfg.RevealInterval, cfg.RevealStep),
		chat.WithLogger(logger),
	)

	apiHandler := api.NewAPIHandler(manager, prefs, images, logger)
	router := api.NewRouter(apiHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // model calls plus the typing reveal can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("server exited")
}
