package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/pkg/types"
)

type snapshotResponse struct {
	types.Snapshot
	Revision uint64 `json:"revision"`
}

func (s *Server) getSnapshot(c echo.Context) error {
	var resp snapshotResponse
	err := s.manager.Route(c.Request().Context(), c.Param("id"), func(sess *project.Session) error {
		resp.Files, resp.Revision = sess.Snapshot()
		return nil
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// putSnapshot replaces every file in the project. An invalid snapshot
// leaves the project untouched.
func (s *Server) putSnapshot(c echo.Context) error {
	var req types.Snapshot
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.Files == nil {
		return badRequest(c, "files is required")
	}

	var revision uint64
	err := s.manager.Route(c.Request().Context(), c.Param("id"), func(sess *project.Session) error {
		if err := sess.Restore(req.Files); err != nil {
			return err
		}
		revision = sess.Revision()
		return nil
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]uint64{"revision": revision})
}

func (s *Server) archiveProject(c echo.Context) error {
	info, err := s.manager.Archive(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) restoreProject(c echo.Context) error {
	info, err := s.manager.RestoreArchive(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, info)
}
