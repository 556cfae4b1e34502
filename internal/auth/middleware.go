package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/internal/metrics"
)

type contextKey string

// ContextKeyProjectID is the echo context key for the project a preview
// token was issued for.
const ContextKeyProjectID contextKey = "project_id"

// GetProjectID retrieves the token's project ID from the echo context.
func GetProjectID(c echo.Context) (string, bool) {
	id, ok := c.Get(string(ContextKeyProjectID)).(string)
	return id, ok && id != ""
}

// APIKeyMiddleware validates the X-API-Key header (or a Bearer token, or the
// api_key query parameter) against the configured key.
// If the configured key is empty, authentication is disabled (development mode).
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			provided := c.Request().Header.Get("X-API-Key")
			if provided == "" {
				provided = bearer(c)
			}
			if provided == "" {
				provided = c.QueryParam("api_key")
			}

			if provided == "" {
				metrics.AuthAttemptsTotal.WithLabelValues("api_key", "missing").Inc()
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing API key",
				})
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				metrics.AuthAttemptsTotal.WithLabelValues("api_key", "invalid").Inc()
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid API key",
				})
			}

			metrics.AuthAttemptsTotal.WithLabelValues("api_key", "ok").Inc()
			return next(c)
		}
	}
}

// PreviewTokenMiddleware validates project-scoped preview JWTs. Browsers
// cannot set headers on iframe or websocket requests, so the token is read
// from the token query parameter first and the Authorization header second.
// The token's project must match the :id URL parameter.
func PreviewTokenMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := c.QueryParam("token")
			if tokenStr == "" {
				tokenStr = bearer(c)
			}
			if tokenStr == "" {
				metrics.AuthAttemptsTotal.WithLabelValues("preview_token", "missing").Inc()
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing preview token",
				})
			}

			claims, err := issuer.ValidatePreviewToken(tokenStr)
			if err != nil {
				metrics.AuthAttemptsTotal.WithLabelValues("preview_token", "invalid").Inc()
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": err.Error(),
				})
			}

			if id := c.Param("id"); id != "" && claims.ProjectID != id {
				metrics.AuthAttemptsTotal.WithLabelValues("preview_token", "wrong_project").Inc()
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "token not valid for this project",
				})
			}

			metrics.AuthAttemptsTotal.WithLabelValues("preview_token", "ok").Inc()
			c.Set(string(ContextKeyProjectID), claims.ProjectID)
			return next(c)
		}
	}
}

func bearer(c echo.Context) string {
	h := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
