package main

import (
	"context"
	"net/http"
	"time"

	"tryonapi/compositor"
	"tryonapi/dbhelper"
	"tryonapi/services"
	"tryonapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := services.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	services.SetGlobalLogger(services.NewLogger(cfg.Env))

	err = sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Env,
		Release:     "tryonapi-worker@1.0.0",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("sentry.Init")
	}
	defer sentry.Flush(2 * time.Second)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.BrokerAddress},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			tasks.QueueGenerate: 7,
		}},
	)

	awsService := &services.AWSService{}
	if err := awsService.InitPresignClient(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("[Queue] Failed to initialize AWS provider: S3")
	}
	transport, err := services.NewTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transport")
	}
	usage, err := services.NewUsageAccumulator().WithMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register usage metrics")
	}

	db := dbhelper.SetupDB()
	processor := &tasks.Processor{
		Wardrobe:      services.NewWardrobeService(db),
		Storage:       awsService,
		Transport:     transport,
		Usage:         usage,
		Compositor:    compositor.New(),
		Bucket:        cfg.R2Bucket,
		Credential:    cfg.DefaultCredential(),
		MaxDimension:  cfg.MaxImageDimension,
		LocalFallback: cfg.LocalFallback,
	}

	go func() {
		addr := ":" + services.GetEnv("METRICS_PORT", "9091")
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()

	mux := asynq.NewServeMux()
	processor.Register(mux)

	log.Info().Str("transport", cfg.Transport).Bool("local_fallback", cfg.LocalFallback).Msg("starting worker")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}
