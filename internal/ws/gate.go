// Package ws upgrades authenticated HTTP requests to WebSocket connections
// and pumps frames between the socket and the match engine.
package ws

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/playmatatu/duel/internal/auth"
	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/metrics"
	"github.com/playmatatu/duel/internal/protocol"
)

// Engine is the part of the match manager the gate talks to.
type Engine interface {
	Connect(c game.Conn)
	Disconnect(c game.Conn)
	Dispatch(c game.Conn, env protocol.Envelope)
}

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Gate authenticates before upgrading so a bad token never gets a socket.
type Gate struct {
	verifier TokenVerifier
	engine   Engine
	upgrader websocket.Upgrader
}

// NewGate builds a gate. With no allowed origins every origin is accepted.
func NewGate(verifier TokenVerifier, engine Engine, allowedOrigins []string) *Gate {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o != "" {
			allowed[o] = true
		}
	}
	return &Gate{
		verifier: verifier,
		engine:   engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Handle is the gin handler for the WebSocket endpoint.
func (g *Gate) Handle(c *gin.Context) {
	identity, err := g.verifier.Verify(auth.TokenFromRequest(c.Request))
	if err != nil {
		metrics.AuthFailures.Inc()
		msg := "invalid token"
		if errors.Is(err, auth.ErrMissingToken) {
			msg = "missing token"
		}
		log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("websocket auth rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn, identity)
	g.engine.Connect(client)
	client.logger.Debug().Msg("connection opened")

	go client.writePump()
	go client.readPump(g.engine)
}
