package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gallery/internal/bootstrap"
	"gallery/internal/http/handlers"
	"gallery/internal/http/httpapi"
	"gallery/internal/infra"
	"gallery/internal/infra/geoip"
	"gallery/internal/infra/google"
	"gallery/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build render pipeline")
	}
	defer pipeline.Close()

	var country middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		country = resolver.CountryCode
	}

	var verifier handlers.IDTokenVerifier
	if cfg.GoogleClientID != "" {
		verifier = google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID)
	}

	app := &handlers.App{
		Renders:        pipeline.Service,
		Gallery:        pipeline.Renders,
		Users:          pipeline.Users,
		Store:          pipeline.Store,
		Verifier:       verifier,
		SessionSecret:  cfg.SessionSecret,
		SecureCookies:  cfg.AppEnv != "development",
		StorageBaseURL: cfg.StorageBaseURL,
		Logger:         &logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		SessionSecret:   cfg.SessionSecret,
		Country:         country,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	// With the in-process queue the API is also the worker. A Redis queue is
	// drained by cmd/worker instead.
	var wg sync.WaitGroup
	execCtx, cancelExec := context.WithCancel(context.Background())
	defer cancelExec()
	if cfg.QueueBackend == infra.QueueBackendMemory {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline.Executor.Run(execCtx)
		}()
	}

	logger.Info().Str("port", cfg.Port).Str("queue", cfg.QueueBackend).Msg("API starting")
	if err := server.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}

	cancelExec()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.ProviderTimeout):
		logger.Warn().Msg("render workers still busy at shutdown")
	}
	logger.Info().Msg("server stopped")
}
