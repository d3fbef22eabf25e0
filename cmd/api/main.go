package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lumenworks/internal/aps"
	"lumenworks/internal/convert"
	"lumenworks/internal/drawing"
	"lumenworks/internal/http/handlers"
	httpapi "lumenworks/internal/http/httpapi"
	"lumenworks/internal/infra"
	"lumenworks/internal/progress"
	"lumenworks/internal/providers/cadgen"
	"lumenworks/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	converter := convert.NewConverter(convert.Options{
		Logger:       &logger,
		FetchTimeout: cfg.FetchTimeout,
		MaxBytes:     cfg.MaxImageBytes,
		Thresholds: convert.Thresholds{
			TransparentRatio: cfg.DarkThemeTransparentRatio,
			WhiteRatio:       cfg.DarkThemeWhiteRatio,
			WhiteLevel:       cfg.DarkThemeWhiteLevel,
		},
	})

	stager, err := aps.NewClient(aps.Options{
		ClientID:     cfg.APSClientID,
		ClientSecret: cfg.APSClientSecret,
		BaseURL:      cfg.APSBaseURL,
		Bucket:       cfg.APSBucket,
		Region:       cfg.APSRegion,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure staging client")
	}

	generator, err := cadgen.NewClient(cadgen.Options{
		BaseURL: cfg.CADGenBaseURL,
		APIKey:  cfg.CADGenAPIKey,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure cad generator client")
	}

	var archive *storage.Archive
	if cfg.ArtifactsDir != "" {
		archive, err = storage.NewArchive(cfg.ArtifactsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare artifact archive")
		}
	}

	store := progress.NewStore(progress.Options{Logger: &logger})

	app := &handlers.App{
		Cfg:       cfg,
		Logger:    logger,
		Converter: converter,
		Stager:    stager,
		Progress:  store,
		Pipeline: &drawing.Pipeline{
			Converter: converter,
			Generator: generator,
			Stager:    stager,
			Progress:  store,
			Archive:   archive,
			Logger:    &logger,
		},
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
