package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/internal/graph"
	"github.com/opensandbox/canvas/internal/preview"
	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/internal/storage"
	"github.com/opensandbox/canvas/internal/template"
	"github.com/opensandbox/canvas/internal/vfs"
)

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, vfs.ErrNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, template.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrPathConflict):
		return http.StatusConflict
	case errors.Is(err, vfs.ErrInvalidPath),
		errors.Is(err, vfs.ErrInvalidOperation),
		errors.Is(err, vfs.ErrInvalidSnapshot),
		errors.Is(err, vfs.ErrNotADirectory),
		errors.Is(err, vfs.ErrIsADirectory):
		return http.StatusBadRequest
	case errors.Is(err, preview.ErrNoEntryPoint),
		errors.Is(err, graph.ErrEntryNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, project.ErrNoArchive):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{
		"error": err.Error(),
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}
