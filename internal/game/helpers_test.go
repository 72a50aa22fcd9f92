package game_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"econ-empire/internal/clock"
	"econ-empire/internal/game"
	"econ-empire/internal/store"
)

var (
	operator = game.Identity{UserID: 1, Role: game.RoleOperator}
	player   = game.Identity{UserID: 2, Role: game.RolePlayer}
	t0       = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
)

type published struct {
	GameID  uint
	Event   string
	Payload any
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(gameID uint, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{GameID: gameID, Event: event, Payload: payload})
}

func (r *recorder) named(event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]published, 0)
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// flakyRepo fails the next n writes that close a round.
type flakyRepo struct {
	game.Repository
	failures *atomic.Int32
}

func newFlakyRepo(repo game.Repository, n int32) *flakyRepo {
	f := &flakyRepo{Repository: repo, failures: &atomic.Int32{}}
	f.failures.Store(n)
	return f
}

func (f *flakyRepo) InTx(ctx context.Context, fn func(tx game.Repository) error) error {
	return f.Repository.InTx(ctx, func(tx game.Repository) error {
		return fn(&flakyRepo{Repository: tx, failures: f.failures})
	})
}

func (f *flakyRepo) UpdateRound(ctx context.Context, r game.Round) error {
	if r.State == game.RoundClosed && f.failures.Add(-1) >= 0 {
		return errors.New("database unavailable")
	}
	return f.Repository.UpdateRound(ctx, r)
}

// demandFailRepo fails the nth CreateDemand call, after that product's
// production rows were already written in the same transaction.
type demandFailRepo struct {
	game.Repository
	calls  *atomic.Int32
	failAt int32
}

func newDemandFailRepo(repo game.Repository, failAt int32) *demandFailRepo {
	return &demandFailRepo{Repository: repo, calls: &atomic.Int32{}, failAt: failAt}
}

func (f *demandFailRepo) InTx(ctx context.Context, fn func(tx game.Repository) error) error {
	return f.Repository.InTx(ctx, func(tx game.Repository) error {
		return fn(&demandFailRepo{Repository: tx, calls: f.calls, failAt: f.failAt})
	})
}

func (f *demandFailRepo) CreateDemand(ctx context.Context, rows []game.Quantity) error {
	if f.calls.Add(1) == f.failAt {
		return errors.New("database unavailable")
	}
	return f.Repository.CreateDemand(ctx, rows)
}

type harness struct {
	store    *store.Store
	clock    *clock.Fake
	sink     *recorder
	sessions *game.Sessions
}

func newHarness(t *testing.T, repo func(*store.Store) game.Repository, attempts int) *harness {
	t.Helper()
	st := store.NewWithReference(game.DefaultCountries(), game.DefaultProducts())
	var r game.Repository = st
	if repo != nil {
		r = repo(st)
	}
	h := &harness{store: st, clock: clock.NewFake(t0), sink: &recorder{}}
	h.sessions = game.NewSessions(r, game.Options{
		Clock:             h.clock,
		Broadcaster:       h.sink,
		Rand:              game.NewRand(7),
		TickInterval:      time.Second,
		AutoCloseAttempts: attempts,
	})
	t.Cleanup(h.sessions.Shutdown)
	return h
}

func (h *harness) createGame(t *testing.T, rounds, seconds int) game.Game {
	t.Helper()
	g, _, err := h.sessions.CreateGame(context.Background(), operator, rounds, seconds)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return g
}

func (h *harness) roundStates(t *testing.T, gameID uint) []game.RoundState {
	t.Helper()
	rounds, err := h.store.ListRounds(context.Background(), gameID)
	if err != nil {
		t.Fatalf("list rounds: %v", err)
	}
	out := make([]game.RoundState, len(rounds))
	for i, r := range rounds {
		out[i] = r.State
	}
	return out
}

func (h *harness) waitForRoundState(t *testing.T, roundID uint, want game.RoundState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		r, err := h.store.GetRound(context.Background(), roundID)
		if err == nil && r.State == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected round %d to be %s, got %s", roundID, want, r.State)
		}
		time.Sleep(time.Millisecond)
	}
}

func countActive(states []game.RoundState) int {
	n := 0
	for _, s := range states {
		if s == game.RoundActive {
			n++
		}
	}
	return n
}
