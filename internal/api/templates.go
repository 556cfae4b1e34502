package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/pkg/types"
)

func (s *Server) listTemplates(c echo.Context) error {
	if s.templates == nil {
		return c.JSON(http.StatusOK, []types.Template{})
	}

	return c.JSON(http.StatusOK, s.templates.List())
}

func (s *Server) getTemplate(c echo.Context) error {
	if s.templates == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "template service not configured",
		})
	}

	tmpl, err := s.templates.Get(c.Param("name"))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, tmpl)
}
