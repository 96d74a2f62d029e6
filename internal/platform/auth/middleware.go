package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

// UserKey carries the authenticated subject on the request context.
const UserKey contextKey = "auth_user"

// JWTMiddleware authenticates bearer tokens and stores the subject on
// the request context. Unauthenticated requests are rejected with a
// WWW-Authenticate challenge.
func JWTMiddleware(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			parts := strings.SplitN(c.Request().Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return challenge(c, cfg)
			}
			subject, err := Verify(cfg, parts[1])
			if err != nil {
				return challenge(c, cfg)
			}

			ctx := context.WithValue(c.Request().Context(), UserKey, subject)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func challenge(c echo.Context, cfg Config) error {
	value := "Bearer"
	if cfg.Audience != "" {
		value = "Bearer realm=" + cfg.Audience
	}
	c.Response().Header().Set("WWW-Authenticate", value)
	return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
}

// UserFromContext returns the authenticated subject, empty when the
// request was not authenticated.
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(UserKey).(string)
	return user
}
