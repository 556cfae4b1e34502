package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/internal/preview"
	"github.com/opensandbox/canvas/pkg/types"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// The preview token, not the origin, authorizes the connection.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// noEntryBody is returned while a project has no entry module.
type noEntryBody struct {
	Error       string             `json:"error"`
	Revision    uint64             `json:"revision"`
	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
}

func (s *Server) getArtifact(c echo.Context) error {
	sess, err := s.manager.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	u := sess.Last()
	if u.Err != nil {
		return c.JSON(errorStatus(u.Err), noEntryBody{
			Error:       u.Err.Error(),
			Revision:    u.Revision,
			Diagnostics: u.Diagnostics,
		})
	}
	return c.JSON(http.StatusOK, u.Artifact.Wire())
}

func (s *Server) createPreviewToken(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.manager.Get(c.Request().Context(), id); err != nil {
		return errorJSON(c, err)
	}

	token, expires, err := s.tokens.IssuePreviewToken(id, s.tokenTTL)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, types.PreviewToken{
		Token:     token,
		URL:       s.publicURL + "/preview/" + id + "?token=" + url.QueryEscape(token),
		ExpiresAt: expires.Unix(),
	})
}

// liveURL is the websocket a preview page listens on for new revisions.
func (s *Server) liveURL(id, token string) string {
	base := s.publicURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/preview/" + id + "/ws?token=" + url.QueryEscape(token)
}

func (s *Server) previewDocument(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	p, err := s.manager.Get(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}
	sess, err := s.manager.Session(ctx, id)
	if err != nil {
		return errorJSON(c, err)
	}

	doc := preview.Document{Title: p.Name, CDN: s.cdn}
	if token := c.QueryParam("token"); token != "" && s.broadcaster != nil {
		doc.LiveURL = s.liveURL(id, token)
	}

	u := sess.Last()
	var buf bytes.Buffer
	status := http.StatusOK
	switch {
	case errors.Is(u.Err, preview.ErrNoEntryPoint):
		status = http.StatusUnprocessableEntity
		err = doc.RenderEmpty(&buf, u.Revision, "Nothing to preview yet: add an App component.", u.Diagnostics)
	case u.Err != nil:
		return errorJSON(c, u.Err)
	default:
		err = doc.Render(&buf, u.Artifact)
	}
	if err != nil {
		return errorJSON(c, err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.HTMLBlob(status, buf.Bytes())
}

// previewSocket streams preview updates for one project. The current state
// is sent on connect; afterwards every compilation is pushed as it happens.
func (s *Server) previewSocket(c echo.Context) error {
	id := c.Param("id")
	if s.broadcaster == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "live updates not configured",
		})
	}

	sess, err := s.manager.Session(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}

	// Subscribe before reading the current state so no update falls between.
	updates := s.broadcaster.Subscribe(id)
	defer s.broadcaster.Unsubscribe(id, updates)
	current := sess.Last().Wire()

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		return nil
	}
	defer ws.Close()

	log := logging.WithContext(c.Request().Context())

	// Clients never send anything meaningful; reading detects disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(current); err != nil {
		return nil
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "project deleted"),
					time.Now().Add(writeWait))
				return nil
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(u); err != nil {
				log.Debug("preview socket write failed", logging.ProjectID(id), logging.Err(err))
				return nil
			}
		case <-ticker.C:
			// A watched preview keeps its project loaded.
			s.manager.Touch(id)
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-closed:
			return nil
		}
	}
}

// getBlob serves one compiled module. Handles are content addresses, so the
// response never changes.
func (s *Server) getBlob(c echo.Context) error {
	handle := strings.TrimSuffix(c.Param("handle"), ".js")
	code, ok := s.blobs.Get(preview.Handle(handle))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "blob not found",
		})
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", []byte(code))
}
