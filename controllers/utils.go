package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"tryonapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func currentSubject(c echo.Context) (string, bool) {
	subject, ok := c.Get("subject").(string)
	return subject, ok && subject != ""
}

// callerCredential prefers the caller's own key and falls back to fallback.
func callerCredential(c echo.Context, fallback string) string {
	if key := c.Request().Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	return fallback
}

func statusForKind(kind services.FailureKind) int {
	switch kind {
	case services.KindContract, services.KindDecode:
		return http.StatusBadRequest
	case services.KindAuth:
		return http.StatusUnauthorized
	case services.KindQuota:
		return http.StatusTooManyRequests
	case services.KindPolicy:
		return http.StatusUnprocessableEntity
	case services.KindSchema, services.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// generationErrorJSON writes the user message of a classified failure with a status matching its kind.
func generationErrorJSON(c echo.Context, err error) error {
	var genErr *services.GenerationError
	if !errors.As(err, &genErr) {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": services.UserMessage(services.KindUnknown)})
	}
	if genErr.Kind == services.KindUnknown || genErr.Kind == services.KindTransport {
		sentry.CaptureException(fmt.Errorf("[%s] %w", genErr.Op, err))
	}
	log.Warn().Err(err).Str("op", genErr.Op).Str("kind", genErr.Kind.String()).Msg("generation request failed")
	return c.JSON(statusForKind(genErr.Kind), map[string]string{
		"error": genErr.Message,
		"kind":  genErr.Kind.String(),
	})
}
