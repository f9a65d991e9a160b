package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/logging"
	"github.com/playmatatu/duel/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
	sendBuffer     = 256
)

// Client is one upgraded connection. It implements game.Conn; Send and Close
// never block the caller.
type Client struct {
	id       string
	identity string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	logger   zerolog.Logger

	closeOnce   sync.Once
	closeReason string
}

var _ game.Conn = (*Client)(nil)

func newClient(conn *websocket.Conn, identity string) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger:   logging.Component("ws").With().Str("conn", id).Str("identity", identity).Logger(),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Identity() string { return c.identity }

// Send queues an event. A full buffer drops the event.
func (c *Client) Send(ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event", ev.Type).Msg("failed to marshal event")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn().Str("event", ev.Type).Msg("send buffer full, dropping event")
	}
}

// Close flushes queued events, sends a close frame carrying reason and shuts
// the socket down.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}

		case <-c.done:
			c.flush()
			// Best effort; the peer may already be gone.
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// readPump feeds inbound frames to the engine and reports the disconnect
// when the socket dies.
func (c *Client) readPump(engine Engine) {
	defer func() {
		engine.Disconnect(c)
		c.Close("")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("unexpected close")
			} else {
				c.logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		env, err := protocol.ParseEnvelope(message)
		if err != nil {
			c.logger.Debug().Err(err).Msg("malformed frame ignored")
			continue
		}
		engine.Dispatch(c, env)
	}
}
