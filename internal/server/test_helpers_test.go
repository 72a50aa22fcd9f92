package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"econ-empire/internal/config"
	"econ-empire/internal/game"
	"econ-empire/internal/store"
)

const testSecret = "test-secret"

type testEnv struct {
	ts       *httptest.Server
	hub      *Hub
	sessions *game.Sessions
	auth     *Authenticator
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.JWTSecret = testSecret
	hub := NewHub()
	st := store.NewWithReference(game.DefaultCountries(), game.DefaultProducts())
	sessions := game.NewSessions(st, game.Options{
		Broadcaster:  hub,
		Rand:         game.NewRand(5),
		TickInterval: cfg.TickInterval(),
	})
	srv := New(sessions, hub, cfg)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(func() {
		sessions.Shutdown()
		ts.Close()
	})
	return &testEnv{ts: ts, hub: hub, sessions: sessions, auth: srv.auth}
}

func (e *testEnv) token(t *testing.T, userID uint, role game.Role) string {
	t.Helper()
	token, err := e.auth.Issue(game.Identity{UserID: userID, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}
