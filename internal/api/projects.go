package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/internal/template"
	"github.com/opensandbox/canvas/pkg/types"
)

func (s *Server) createProject(c echo.Context) error {
	var cfg types.ProjectConfig
	if err := c.Bind(&cfg); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	p, err := s.manager.Create(c.Request().Context(), cfg)
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			return badRequest(c, err.Error())
		}
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) listProjects(c echo.Context) error {
	projects, err := s.manager.List(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, types.ProjectListResponse{Projects: projects})
}

func (s *Server) getProject(c echo.Context) error {
	p, err := s.manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProject(c echo.Context) error {
	if err := s.manager.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) saveProject(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := s.manager.Get(ctx, id); err != nil {
		return errorJSON(c, err)
	}
	if err := s.manager.Save(ctx, id); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) hibernateProject(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := s.manager.Get(ctx, id); err != nil {
		return errorJSON(c, err)
	}
	if err := s.manager.Hibernate(ctx, id); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listEvents(c echo.Context) error {
	if s.eventLog == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{
			"error": "event log not available for this store",
		})
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return badRequest(c, "limit must be between 1 and 1000")
		}
		limit = n
	}

	id := c.Param("id")
	evs, err := s.eventLog.ListEvents(c.Request().Context(), id, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": evs})
}
