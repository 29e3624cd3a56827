package match

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/matchday/pkg/http/errors"
	ws "github.com/gokatarajesh/matchday/pkg/http/ws"
)

// DisplayHandler streams alerts and session updates to display clients.
type DisplayHandler struct {
	service *Service
	hub     *ws.Hub
	logger  zerolog.Logger
}

func NewDisplayHandler(service *Service, hub *ws.Hub, logger zerolog.Logger) *DisplayHandler {
	return &DisplayHandler{
		service: service,
		hub:     hub,
		logger:  logger.With().Str("component", "display_ws").Logger(),
	}
}

// HandleWebSocket upgrades GET /ws/alerts?scope=... and subscribes the display to scope.
func (h *DisplayHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.service.Controller(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidScope, "Missing or invalid scope")
		return
	}

	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, ctrl)
}

// HandleConnection serves one display until it disconnects.
func (h *DisplayHandler) HandleConnection(conn *websocket.Conn, ctrl *Controller) {
	wsConn := ws.NewConnection(conn, h.logger)
	id := h.hub.Register(ctrl.Scope(), wsConn)

	go wsConn.WritePump()

	if msg, err := ws.NewMessage(ws.TypeSessionUpdate, ctrl.View()); err == nil {
		_ = wsConn.Send(msg)
	}

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(wsConn, ctrl, msg)
	})

	h.hub.Unregister(id)
}

func (h *DisplayHandler) handleMessage(conn *ws.Connection, ctrl *Controller, msg ws.Message) error {
	switch msg.Type {
	case ws.TypePing:
		reply := ws.Message{Type: ws.TypePong, RequestID: msg.RequestID}
		return conn.Send(reply)
	case ws.TypeSessionUpdate:
		reply, err := ws.NewMessage(ws.TypeSessionUpdate, ctrl.View())
		if err != nil {
			return err
		}
		reply.RequestID = msg.RequestID
		return conn.Send(reply)
	default:
		reply, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
			Code:    httperrors.ErrCodeUnknownMessageType,
			Message: fmt.Sprintf("Unknown message type: %s", msg.Type),
		})
		if err != nil {
			return err
		}
		return conn.Send(reply)
	}
}

// SessionUpdates returns a change observer that pushes views to the displays of their scope.
func SessionUpdates(hub *ws.Hub, logger zerolog.Logger) func(View) {
	return func(v View) {
		if hub.Subscribers(v.Scope) == 0 {
			return
		}
		msg, err := ws.NewMessage(ws.TypeSessionUpdate, v)
		if err != nil {
			logger.Warn().Err(err).Str("scope", v.Scope).Msg("encode session update failed")
			return
		}
		_ = hub.BroadcastToScope(v.Scope, msg)
	}
}
