package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmatatu/duel/internal/auth"
	"github.com/playmatatu/duel/internal/config"
	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/matchevents"
	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/protocol"
)

const testSecret = "routes-secret"

type fakeEngine struct {
	status game.Status
	err    error
}

func (e *fakeEngine) Connect(game.Conn)                     {}
func (e *fakeEngine) Disconnect(game.Conn)                  {}
func (e *fakeEngine) Dispatch(game.Conn, protocol.Envelope) {}
func (e *fakeEngine) Status(context.Context) (game.Status, error) {
	return e.status, e.err
}

type fakeStore struct {
	profiles map[string]*models.Profile
	matches  []models.MatchRecord
	limit    int
}

func (s *fakeStore) GetProfile(_ context.Context, identity string) (*models.Profile, error) {
	p, ok := s.profiles[identity]
	if !ok {
		p = &models.Profile{Identity: identity, Coins: 1000, Gems: 100, Rating: 1000}
		s.profiles[identity] = p
	}
	return p, nil
}

func (s *fakeStore) UpdateProfile(ctx context.Context, identity, name string, born time.Time) (*models.Profile, error) {
	p, _ := s.GetProfile(ctx, identity)
	p.DisplayName = name
	p.BirthDate.Time, p.BirthDate.Valid = born, true
	return p, nil
}

func (s *fakeStore) ListMatches(_ context.Context, identity string, limit int) ([]models.MatchRecord, error) {
	s.limit = limit
	var out []models.MatchRecord
	for _, m := range s.matches {
		if m.PlayerA == identity || m.PlayerB == identity {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeSnapshots map[string]*game.LifecycleEvent

func (f fakeSnapshots) Snapshot(_ context.Context, id string) (*game.LifecycleEvent, error) {
	ev, ok := f[id]
	if !ok {
		return nil, matchevents.ErrSnapshotNotFound
	}
	return ev, nil
}

type routesFixture struct {
	router *gin.Engine
	store  *fakeStore
	engine *fakeEngine
}

func newFixture(t *testing.T, snapshots fakeSnapshots) *routesFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &routesFixture{
		router: gin.New(),
		store:  &fakeStore{profiles: map[string]*models.Profile{}},
		engine: &fakeEngine{},
	}
	deps := Deps{
		Config:   &config.Config{Environment: "test", FrontendURL: "https://duel.example"},
		Verifier: auth.NewVerifier(testSecret, "duel"),
		Engine:   f.engine,
		Store:    f.store,
	}
	if snapshots != nil {
		deps.Snapshots = snapshots
	}
	SetupRoutes(f.router, deps)
	return f
}

func (f *routesFixture) do(t *testing.T, method, path, identity, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" {
		token, err := auth.Mint(testSecret, "duel", identity, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.status = game.Status{Connections: 4, ActiveSessions: 2}
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := f.do(t, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		body := decode(t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, float64(4), body["connections"])
		assert.Equal(t, float64(2), body["active_sessions"])
	}
}

func TestHealthReportsStoppedManager(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.err = game.ErrStopped

	rec := f.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, game.ErrStopped.Error(), body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duel_connections")
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/api/v1/me", "/api/v1/me/matches", "/api/v1/queue/status"} {
		rec := f.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "missing token", decode(t, rec)["error"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decode(t, rec)["error"])
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t, nil)
	f.store.profiles["alice"] = &models.Profile{Identity: "alice", DisplayName: "Alice", Coins: 40, Rating: 1450}

	rec := f.do(t, http.MethodGet, "/api/v1/me", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Alice", body["display_name"])
	assert.Equal(t, float64(40), body["coins"])
	assert.Equal(t, "gold", body["band"])
	assert.NotContains(t, body, "birth_date")
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed", body: `{`, code: http.StatusBadRequest},
		{name: "empty name", body: `{"display_name":"  ","birth_date":"1990-04-01"}`, code: http.StatusBadRequest},
		{name: "bad date", body: `{"display_name":"Al","birth_date":"01/04/1990"}`, code: http.StatusBadRequest},
		{name: "valid", body: `{"display_name":" Al ","birth_date":"1990-04-01"}`, code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPut, "/api/v1/me", "alice", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	p := f.store.profiles["alice"]
	require.NotNil(t, p)
	assert.Equal(t, "Al", p.DisplayName)
	assert.Equal(t, "1990-04-01", p.BirthDateString())
}

func TestListMatches(t *testing.T) {
	f := newFixture(t, nil)
	f.store.matches = []models.MatchRecord{
		{ID: "m1", PlayerA: "alice", PlayerB: "bob", Winner: "alice"},
		{ID: "m2", PlayerA: "carol", PlayerB: "dave", Winner: "dave"},
	}

	rec := f.do(t, http.MethodGet, "/api/v1/me/matches?limit=5", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.store.limit)
	matches := decode(t, rec)["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "m1", matches[0].(map[string]any)["id"])

	rec = f.do(t, http.MethodGet, "/api/v1/me/matches?limit=zero", "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.status = game.Status{
		Connections:    3,
		ActiveSessions: 1,
		Buckets:        []game.BucketSize{{Bucket: "casual:50", Waiting: 1}},
	}

	rec := f.do(t, http.MethodGet, "/api/v1/queue/status", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["connections"])
	assert.Equal(t, float64(1), body["active_sessions"])
	buckets := body["buckets"].([]any)
	require.Len(t, buckets, 1)
}

func TestSessionSnapshotRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/sessions/abc", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "route absent without a snapshot source")

	f = newFixture(t, fakeSnapshots{
		"abc": {Type: game.EventSessionStarted, SessionID: "abc"},
	})
	rec = f.do(t, http.MethodGet, "/api/v1/sessions/abc", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "abc")

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/missing", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session not found", decode(t, rec)["error"])
}
