package controllers

import (
	"context"
	"net/http"

	"tryonapi/compositor"
	"tryonapi/models"
	"tryonapi/services"

	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HeaderAPIKey carries the caller's own image-service credential.
const HeaderAPIKey = services.HeaderCallerKey

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// TaskEnqueuer is the part of *asynq.Client the handlers use.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type ServerDeps struct {
	Config     *services.Config
	Generator  services.GenerationProvider
	Usage      *services.UsageAccumulator
	Compositor *compositor.Compositor
	Wardrobe   services.WardrobeProvider
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
	Queue      TaskEnqueuer
	// Gatherer backs /metrics, the default registry when nil.
	Gatherer prometheus.Gatherer
}

func SetupServer(deps ServerDeps) *echo.Echo {
	if err := deps.AWSService.InitPresignClient(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AWS provider: S3")
	}

	e := echo.New()
	v := validator.New()
	v.RegisterValidation("photo_type", models.ValidatePhotoType)
	v.RegisterValidation("quality", models.ValidateQuality)
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__wardrobe", deps.Wardrobe)
			c.Set("__asynqclient", deps.Queue)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, HeaderAPIKey},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	proxy, err := NewProviderProxy(deps.Config.OpenAIBaseURL, deps.Config.OpenAIAPIKey)
	if err != nil {
		log.Fatal().Err(err).Str("base_url", deps.Config.OpenAIBaseURL).Msg("Invalid provider base URL")
	}
	proxyGroup := e.Group(ProxyPrefix, echojwt.JWT([]byte(deps.Config.JWTSecret)))
	proxyGroup.Any("/*", echo.WrapHandler(proxy))

	apiGroup := e.Group("/api", echojwt.JWT([]byte(deps.Config.JWTSecret)))
	apiGroup.Use(SubjectMiddleware)

	tryOnController := TryOnController{
		Generator:         deps.Generator,
		Usage:             deps.Usage,
		Compositor:        deps.Compositor,
		DefaultCredential: deps.Config.DefaultCredential(),
	}
	tryOnController.TryOnRoutes(apiGroup)

	wardrobeController := WardrobeController{
		AWSService: deps.AWSService,
		URLCache:   deps.URLCache,
		Bucket:     deps.Config.R2Bucket,
	}
	wardrobeController.WardrobeRoutes(apiGroup)

	return e
}
