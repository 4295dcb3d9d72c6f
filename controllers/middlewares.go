package controllers

import (
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// SubjectMiddleware exposes the token subject as "subject". Wardrobe items and try-on jobs
// are owned by that subject.
func SubjectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userRaw := c.Get("user")
		if userRaw == nil {
			return echo.ErrUnauthorized
		}
		user, ok := userRaw.(*jwt.Token)
		if !ok {
			return echo.ErrUnauthorized
		}
		claims, ok := user.Claims.(jwt.MapClaims)
		if !ok {
			return echo.ErrUnauthorized
		}
		subject, _ := claims["sub"].(string)
		if subject == "" {
			log.Warn().Msg("Error while getting the token information!")
			return echo.ErrUnauthorized
		}
		c.Set("subject", subject)
		return next(c)
	}
}
