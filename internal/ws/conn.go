// Package ws adapts gorilla/websocket connections to the hub's
// Connection interface, one reader and one writer goroutine per client.
package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/huddle/internal/hub"
	"github.com/eldtechnologies/huddle/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames carry a JSON envelope around a capped message body.
	maxFrameSize = 8192

	sendBuffer = 256
)

// ErrSendBufferFull is returned when a connection's outbound buffer is
// saturated; the transport drops the connection rather than block a room.
var ErrSendBufferFull = errors.New("send buffer full")

// Handler consumes inbound frames and connection lifecycle events.
// Implemented by the protocol dispatcher.
type Handler interface {
	Handle(ctx context.Context, conn hub.Connection, data []byte)
	Disconnected(conn hub.Connection)
}

// Conn is one websocket client connection.
type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	hub     *hub.Hub
	handler Handler
	logger  zerolog.Logger
}

// NewConn wraps an upgraded websocket connection.
func NewConn(id string, wsConn *websocket.Conn, h *hub.Hub, handler Handler, logger zerolog.Logger) *Conn {
	return &Conn{
		id:      id,
		ws:      wsConn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		handler: handler,
		logger:  logger,
	}
}

// ID returns the connection's identifier.
func (c *Conn) ID() string { return c.id }

// Send queues a frame for the write pump. Never blocks.
func (c *Conn) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close closes the underlying websocket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Start registers the connection and runs its pumps.
func (c *Conn) Start(ctx context.Context) {
	c.hub.Register(c)
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()

	go c.writePump()
	go c.readPump(ctx)
}

func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		// Closing the connection is the leave: session teardown, typing
		// cancellation, and presence all hang off Disconnected.
		c.handler.Disconnected(c)
		c.ws.Close()
		metrics.ConnectionsActive.Dec()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Str("conn", c.id).Msg("read error")
			}
			return
		}

		c.handler.Handle(ctx, c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
