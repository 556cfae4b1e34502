package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/pkg/types"
)

// applyToolCalls applies a batch of agent file-edit commands. Individual
// command failures are reported per result; the batch itself succeeds.
func (s *Server) applyToolCalls(c echo.Context) error {
	var req types.ToolCallRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if len(req.Calls) == 0 {
		return badRequest(c, "calls must not be empty")
	}

	resp, err := s.manager.ApplyToolCalls(c.Request().Context(), c.Param("id"), req.Calls)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
