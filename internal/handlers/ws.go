package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/huddle/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay is origin-agnostic; identity is asserted at join time.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Connect upgrades an HTTP request to the bidirectional event channel.
// The connection has no session until it sends join_chat.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConn(uuid.New().String(), wsConn, h.hub, h.dispatcher, h.logger)
	// The request context dies when this handler returns; the hijacked
	// connection outlives it.
	conn.Start(context.Background())
}
