package main

import (
	"time"

	"tryonapi/compositor"
	"tryonapi/controllers"
	"tryonapi/dbhelper"
	"tryonapi/services"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := services.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	services.SetGlobalLogger(services.NewLogger(cfg.Env))

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Env,
		Release:          "tryonapi@1.0.0",
		Debug:            false,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("sentry.Init")
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET environment variable is not set!")
	}

	transport, err := services.NewTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transport")
	}
	usage, err := services.NewUsageAccumulator().WithMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register usage metrics")
	}
	generator := services.NewGenerationClient(transport, usage,
		services.WithLogger(log.Logger),
		services.WithMaxDimension(cfg.MaxImageDimension),
	)

	db := dbhelper.SetupDB()
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.BrokerAddress})
	defer asynqClient.Close()

	awsService := &services.AWSService{}
	urlCache, err := services.NewURLCacheService(awsService, cfg.R2Bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize URL cache service")
	}

	e := controllers.SetupServer(controllers.ServerDeps{
		Config:     cfg,
		Generator:  generator,
		Usage:      usage,
		Compositor: compositor.New(),
		Wardrobe:   services.NewWardrobeService(db),
		AWSService: awsService,
		URLCache:   urlCache,
		Queue:      asynqClient,
	})
	e.Debug = cfg.Env == "development"
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(3)))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))

	log.Info().Str("transport", cfg.Transport).Str("port", cfg.Port).Msg("starting api")
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
