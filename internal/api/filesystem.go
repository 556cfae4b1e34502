package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/internal/toolcall"
	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/internal/vpath"
	"github.com/opensandbox/canvas/pkg/types"
)

func (s *Server) readFile(c echo.Context) error {
	id := c.Param("id")
	path := c.QueryParam("path")
	if path == "" {
		return badRequest(c, "path query parameter is required")
	}

	var content string
	err := s.manager.Route(c.Request().Context(), id, func(sess *project.Session) error {
		return sess.View(func(fsys *vfs.FileSystem) error {
			var err error
			content, err = fsys.Read(path)
			return err
		})
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.String(http.StatusOK, content)
}

func (s *Server) writeFile(c echo.Context) error {
	id := c.Param("id")
	path := c.QueryParam("path")
	if path == "" {
		return badRequest(c, "path query parameter is required")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "failed to read request body: "+err.Error())
	}

	var revision uint64
	err = s.manager.Route(c.Request().Context(), id, func(sess *project.Session) error {
		if err := sess.Update(func(fsys *vfs.FileSystem) error {
			return fsys.Write(path, string(body))
		}); err != nil {
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

func (s *Server) removeFile(c echo.Context) error {
	id := c.Param("id")
	path := c.QueryParam("path")
	if path == "" {
		return badRequest(c, "path query parameter is required")
	}

	err := s.manager.Route(c.Request().Context(), id, func(sess *project.Session) error {
		return sess.Update(func(fsys *vfs.FileSystem) error {
			return fsys.Delete(path)
		})
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listDir(c echo.Context) error {
	id := c.Param("id")
	path := c.QueryParam("path")
	if path == "" {
		path = vpath.Root
	}

	var entries []types.EntryInfo
	err := s.manager.Route(c.Request().Context(), id, func(sess *project.Session) error {
		return sess.View(func(fsys *vfs.FileSystem) error {
			dir, err := fsys.Stat(path)
			if err != nil {
				return err
			}
			names, err := fsys.List(dir.Path)
			if err != nil {
				return err
			}
			entries = make([]types.EntryInfo, 0, len(names))
			for _, name := range names {
				info, err := fsys.Stat(vpath.Child(dir.Path, name))
				if err != nil {
					return err
				}
				entries = append(entries, types.EntryInfo{
					Name:  info.Name,
					IsDir: info.IsDir(),
					Size:  int64(info.Size),
					Path:  info.Path,
				})
			}
			return nil
		})
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, entries)
}

func (s *Server) makeDir(c echo.Context) error {
	id := c.Param("id")
	path := c.QueryParam("path")
	if path == "" {
		return badRequest(c, "path query parameter is required")
	}

	err := s.manager.Route(c.Request().Context(), id, func(sess *project.Session) error {
		return sess.Update(func(fsys *vfs.FileSystem) error {
			return fsys.MkdirAll(path)
		})
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) moveFile(c echo.Context) error {
	id := c.Param("id")

	var req types.MoveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if req.From == "" || req.To == "" {
		return badRequest(c, "from and to are required")
	}

	err := s.manager.Route(c.Request().Context(), id, func(sess *project.Session) error {
		return sess.Update(func(fsys *vfs.FileSystem) error {
			return toolcall.Move(fsys, req.From, req.To)
		})
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
