package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flowzen/internal/config"
	"flowzen/internal/infra"
	"flowzen/internal/repository"
	"flowzen/internal/router"
	"flowzen/internal/service"
	"flowzen/internal/worker"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Async fiscalization pipeline: the worker pool consumes jobs the sale
	// service enqueues; the sweep cron re-drives sales whose jobs were lost.
	// Both share one breaker so a downed fiscal sidecar trips once.
	fiscalCB := infra.NewBreaker(infra.DefaultBreakerConfig())
	fiscalClient := infra.NewFiscalClient(cfg.FiscalGatewayURL)
	mailer := infra.NewMailer(cfg)
	dispatcher := worker.NewDispatcher(rdb)
	saleRepo := repository.NewSaleRepository(db)

	fiscalSvc := service.NewFiscalService(saleRepo, fiscalClient, cfg.FiscalSettle(), nil,
		log.With().Str("component", "fiscal").Logger())

	pool := worker.NewPool(rdb)
	pool.Register("fiscal", worker.NewFiscalWorker(fiscalSvc, saleRepo, fiscalCB, dispatcher, rdb, cfg.PDFStoragePath))
	pool.Register("email", worker.NewEmailWorker(mailer))
	pool.Start(ctx, cfg.WorkerPoolSize)

	worker.StartSweepCron(ctx, worker.SweepCronConfig{
		Sales:   saleRepo,
		Fiscal:  fiscalSvc,
		Breaker: fiscalCB,
	})

	r := router.New(cfg, db, rdb, fiscalCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("flowzen backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
