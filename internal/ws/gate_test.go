package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmatatu/duel/internal/auth"
	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/protocol"
)

const testSecret = "test-secret"

type dispatched struct {
	conn game.Conn
	env  protocol.Envelope
}

type fakeEngine struct {
	connects    chan game.Conn
	disconnects chan game.Conn
	messages    chan dispatched
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		connects:    make(chan game.Conn, 4),
		disconnects: make(chan game.Conn, 4),
		messages:    make(chan dispatched, 4),
	}
}

func (e *fakeEngine) Connect(c game.Conn)    { e.connects <- c }
func (e *fakeEngine) Disconnect(c game.Conn) { e.disconnects <- c }
func (e *fakeEngine) Dispatch(c game.Conn, env protocol.Envelope) {
	e.messages <- dispatched{conn: c, env: env}
}

func newGateServer(t *testing.T, engine Engine) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewGate(auth.NewVerifier(testSecret, "duel"), engine, nil).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func dial(t *testing.T, srv *httptest.Server, identity string) *websocket.Conn {
	t.Helper()
	token, err := auth.Mint(testSecret, "duel", identity, time.Minute)
	require.NoError(t, err)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitConn(t *testing.T, ch chan game.Conn) game.Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for engine call")
		return nil
	}
}

func TestGateRejectsBadTokens(t *testing.T) {
	engine := newFakeEngine()
	srv := newGateServer(t, engine)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "missing", token: "", want: "missing token"},
		{name: "garbage", token: "not-a-jwt", want: "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.token), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.want, body["error"])
		})
	}
	assert.Empty(t, engine.connects)
}

func TestGateRejectsWrongSecret(t *testing.T) {
	srv := newGateServer(t, newFakeEngine())
	token, err := auth.Mint("other-secret", "duel", "alice", time.Minute)
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.Error(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateRoundTrip(t *testing.T) {
	engine := newFakeEngine()
	srv := newGateServer(t, engine)
	conn := dial(t, srv, "alice")

	c := waitConn(t, engine.connects)
	assert.Equal(t, "alice", c.Identity())
	assert.NotEmpty(t, c.ID())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"findMatch","data":{"mode":"casual","stakeOrBucket":50}}`)))
	select {
	case d := <-engine.messages:
		assert.Equal(t, c, d.conn)
		assert.Equal(t, protocol.TypeFindMatch, d.env.Type)
		var req protocol.FindMatch
		require.NoError(t, d.env.Decode(&req))
		assert.Equal(t, int64(50), req.StakeOrBucket)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not dispatched")
	}

	c.Send(protocol.NewEvent(protocol.TypeCountdown, protocol.Countdown{Remaining: 3}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeCountdown, env.Type)
}

func TestGateIgnoresMalformedFrames(t *testing.T) {
	engine := newFakeEngine()
	srv := newGateServer(t, engine)
	conn := dial(t, srv, "alice")
	waitConn(t, engine.connects)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"leaveQueue"}`)))

	select {
	case d := <-engine.messages:
		assert.Equal(t, protocol.TypeLeaveQueue, d.env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame was not dispatched")
	}
	assert.Empty(t, engine.messages)
}

func TestGateClientCloseReportsDisconnect(t *testing.T) {
	engine := newFakeEngine()
	srv := newGateServer(t, engine)
	conn := dial(t, srv, "alice")
	c := waitConn(t, engine.connects)

	require.NoError(t, conn.Close())
	assert.Equal(t, c, waitConn(t, engine.disconnects))
}

func TestServerCloseCarriesReason(t *testing.T) {
	engine := newFakeEngine()
	srv := newGateServer(t, engine)
	conn := dial(t, srv, "alice")
	c := waitConn(t, engine.connects)

	c.Send(protocol.NewEvent(protocol.TypeWaiting, nil))
	c.Close("replaced by new connection")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "queued events are flushed before the close frame")
	env, err := protocol.ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeWaiting, env.Type)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "replaced by new connection", closeErr.Text)

	waitConn(t, engine.disconnects)
}
