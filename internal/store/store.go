// Package store keeps game data in process memory. Transactions run against
// a copy of the state that replaces the live state only on success.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"econ-empire/internal/game"
)

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func New() *Store {
	return &Store{state: newState(), now: timeNowUTC}
}

// NewWithReference returns a store preloaded with countries and products.
func NewWithReference(countries []game.Country, products []game.Product) *Store {
	s := New()
	for _, c := range countries {
		s.state.addCountry(c)
	}
	for _, p := range products {
		s.state.addProduct(p)
	}
	return s
}

type state struct {
	nextID     uint
	countries  []game.Country
	products   []game.Product
	games      map[uint]game.Game
	rounds     map[uint]game.Round
	assigned   []game.Assignment
	production []game.Quantity
	demand     []game.Quantity
	tariffs    []game.TariffRate
	chat       []game.ChatMessage
	events     []game.Event
}

func newState() *state {
	return &state{
		nextID: 1,
		games:  make(map[uint]game.Game),
		rounds: make(map[uint]game.Round),
	}
}

func (st *state) id() uint {
	id := st.nextID
	st.nextID++
	return id
}

func (st *state) clone() *state {
	out := &state{
		nextID:     st.nextID,
		countries:  append([]game.Country(nil), st.countries...),
		products:   append([]game.Product(nil), st.products...),
		games:      make(map[uint]game.Game, len(st.games)),
		rounds:     make(map[uint]game.Round, len(st.rounds)),
		assigned:   append([]game.Assignment(nil), st.assigned...),
		production: append([]game.Quantity(nil), st.production...),
		demand:     append([]game.Quantity(nil), st.demand...),
		tariffs:    append([]game.TariffRate(nil), st.tariffs...),
		chat:       append([]game.ChatMessage(nil), st.chat...),
		events:     append([]game.Event(nil), st.events...),
	}
	for id, g := range st.games {
		out.games[id] = g
	}
	for id, r := range st.rounds {
		out.rounds[id] = r
	}
	return out
}

func (st *state) addCountry(c game.Country) {
	if c.ID == 0 {
		c.ID = st.id()
	} else if c.ID >= st.nextID {
		st.nextID = c.ID + 1
	}
	st.countries = append(st.countries, c)
}

func (st *state) addProduct(p game.Product) {
	if p.ID == 0 {
		p.ID = st.id()
	} else if p.ID >= st.nextID {
		st.nextID = p.ID + 1
	}
	st.products = append(st.products, p)
}

// run executes fn against the live state under the store lock.
func (s *Store) run(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) InTx(ctx context.Context, fn func(tx game.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.state.clone()
	if err := fn(&txView{st: draft, now: s.now}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// Events returns a copy of the audit log.
func (s *Store) Events() []game.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]game.Event(nil), s.state.events...)
}

func (s *Store) ListCountries(ctx context.Context) ([]game.Country, error) {
	var out []game.Country
	err := s.run(func(st *state) (err error) { out, err = st.listCountries(); return })
	return out, err
}

func (s *Store) ListProducts(ctx context.Context) ([]game.Product, error) {
	var out []game.Product
	err := s.run(func(st *state) (err error) { out, err = st.listProducts(); return })
	return out, err
}

func (s *Store) CreateGame(ctx context.Context, g *game.Game) error {
	return s.run(func(st *state) error { return st.createGame(g, s.now()) })
}

func (s *Store) GetGame(ctx context.Context, id uint) (game.Game, error) {
	var out game.Game
	err := s.run(func(st *state) (err error) { out, err = st.getGame(id); return })
	return out, err
}

func (s *Store) UpdateGameState(ctx context.Context, id uint, gs game.GameState) error {
	return s.run(func(st *state) error { return st.updateGameState(id, gs) })
}

func (s *Store) DeleteGame(ctx context.Context, id uint) error {
	return s.run(func(st *state) error { return st.deleteGame(id) })
}

func (s *Store) CreateRound(ctx context.Context, r *game.Round) error {
	return s.run(func(st *state) error { return st.createRound(r) })
}

func (s *Store) GetRound(ctx context.Context, id uint) (game.Round, error) {
	var out game.Round
	err := s.run(func(st *state) (err error) { out, err = st.getRound(id); return })
	return out, err
}

func (s *Store) ListRounds(ctx context.Context, gameID uint) ([]game.Round, error) {
	var out []game.Round
	err := s.run(func(st *state) (err error) { out, err = st.listRounds(gameID); return })
	return out, err
}

func (s *Store) UpdateRound(ctx context.Context, r game.Round) error {
	return s.run(func(st *state) error { return st.updateRound(r) })
}

func (s *Store) GetAssignment(ctx context.Context, gameID, userID uint) (game.Assignment, error) {
	var out game.Assignment
	err := s.run(func(st *state) (err error) { out, err = st.getAssignment(gameID, userID); return })
	return out, err
}

func (s *Store) ListAssignments(ctx context.Context, gameID uint) ([]game.Assignment, error) {
	var out []game.Assignment
	err := s.run(func(st *state) (err error) { out, err = st.listAssignments(gameID); return })
	return out, err
}

func (s *Store) CreateAssignment(ctx context.Context, a game.Assignment) error {
	return s.run(func(st *state) error { return st.createAssignment(a) })
}

func (s *Store) CreateProduction(ctx context.Context, rows []game.Quantity) error {
	return s.run(func(st *state) error { return st.createQuantities(&st.production, rows) })
}

func (s *Store) CreateDemand(ctx context.Context, rows []game.Quantity) error {
	return s.run(func(st *state) error { return st.createQuantities(&st.demand, rows) })
}

func (s *Store) ListProduction(ctx context.Context, gameID uint) ([]game.Quantity, error) {
	var out []game.Quantity
	err := s.run(func(st *state) error { out = filterQuantities(st.production, gameID); return nil })
	return out, err
}

func (s *Store) ListDemand(ctx context.Context, gameID uint) ([]game.Quantity, error) {
	var out []game.Quantity
	err := s.run(func(st *state) error { out = filterQuantities(st.demand, gameID); return nil })
	return out, err
}

func (s *Store) UpsertTariffRate(ctx context.Context, rate game.TariffRate) error {
	return s.run(func(st *state) error { return st.upsertTariff(rate, s.now()) })
}

func (s *Store) ListTariffRates(ctx context.Context, filter game.TariffFilter) ([]game.TariffRate, error) {
	var out []game.TariffRate
	err := s.run(func(st *state) error { out = st.listTariffs(filter); return nil })
	return out, err
}

func (s *Store) CreateChatMessage(ctx context.Context, msg *game.ChatMessage) error {
	return s.run(func(st *state) error { return st.createChat(msg, s.now()) })
}

func (s *Store) ListChatMessages(ctx context.Context, gameID uint, since time.Time) ([]game.ChatMessage, error) {
	var out []game.ChatMessage
	err := s.run(func(st *state) error { out = st.listChat(gameID, since); return nil })
	return out, err
}

func (s *Store) RecordEvent(ctx context.Context, event game.Event) error {
	return s.run(func(st *state) error { st.events = append(st.events, event); return nil })
}

func (st *state) listCountries() ([]game.Country, error) {
	out := append([]game.Country(nil), st.countries...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) listProducts() ([]game.Product, error) {
	out := append([]game.Product(nil), st.products...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) createGame(g *game.Game, now time.Time) error {
	g.ID = st.id()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	st.games[g.ID] = *g
	return nil
}

func (st *state) getGame(id uint) (game.Game, error) {
	g, ok := st.games[id]
	if !ok {
		return game.Game{}, fmt.Errorf("game %d: %w", id, game.ErrNotFound)
	}
	return g, nil
}

func (st *state) updateGameState(id uint, gs game.GameState) error {
	g, ok := st.games[id]
	if !ok {
		return fmt.Errorf("game %d: %w", id, game.ErrNotFound)
	}
	g.State = gs
	st.games[id] = g
	return nil
}

func (st *state) deleteGame(id uint) error {
	if _, ok := st.games[id]; !ok {
		return fmt.Errorf("game %d: %w", id, game.ErrNotFound)
	}
	delete(st.games, id)
	for roundID, r := range st.rounds {
		if r.GameID == id {
			delete(st.rounds, roundID)
		}
	}
	st.assigned = slices.DeleteFunc(st.assigned, func(a game.Assignment) bool { return a.GameID == id })
	st.production = slices.DeleteFunc(st.production, func(q game.Quantity) bool { return q.GameID == id })
	st.demand = slices.DeleteFunc(st.demand, func(q game.Quantity) bool { return q.GameID == id })
	st.tariffs = slices.DeleteFunc(st.tariffs, func(r game.TariffRate) bool { return r.GameID == id })
	st.chat = slices.DeleteFunc(st.chat, func(m game.ChatMessage) bool { return m.GameID == id })
	st.events = slices.DeleteFunc(st.events, func(e game.Event) bool { return e.GameID == id })
	return nil
}

func (st *state) createRound(r *game.Round) error {
	if _, ok := st.games[r.GameID]; !ok {
		return fmt.Errorf("game %d: %w", r.GameID, game.ErrNotFound)
	}
	for _, existing := range st.rounds {
		if existing.GameID == r.GameID && existing.Number == r.Number {
			return fmt.Errorf("round %d: %w", r.Number, game.ErrConflict)
		}
	}
	r.ID = st.id()
	st.rounds[r.ID] = *r
	return nil
}

func (st *state) getRound(id uint) (game.Round, error) {
	r, ok := st.rounds[id]
	if !ok {
		return game.Round{}, fmt.Errorf("round %d: %w", id, game.ErrNotFound)
	}
	return r, nil
}

func (st *state) listRounds(gameID uint) ([]game.Round, error) {
	out := make([]game.Round, 0)
	for _, r := range st.rounds {
		if r.GameID == gameID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (st *state) updateRound(r game.Round) error {
	existing, ok := st.rounds[r.ID]
	if !ok {
		return fmt.Errorf("round %d: %w", r.ID, game.ErrNotFound)
	}
	existing.State = r.State
	existing.StartsAt = r.StartsAt
	existing.EndsAt = r.EndsAt
	st.rounds[r.ID] = existing
	return nil
}

func (st *state) getAssignment(gameID, userID uint) (game.Assignment, error) {
	for _, a := range st.assigned {
		if a.GameID == gameID && a.UserID == userID {
			return a, nil
		}
	}
	return game.Assignment{}, fmt.Errorf("assignment: %w", game.ErrNotFound)
}

func (st *state) listAssignments(gameID uint) ([]game.Assignment, error) {
	out := make([]game.Assignment, 0)
	for _, a := range st.assigned {
		if a.GameID == gameID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (st *state) createAssignment(a game.Assignment) error {
	for _, existing := range st.assigned {
		if existing.GameID != a.GameID {
			continue
		}
		if existing.UserID == a.UserID || existing.CountryID == a.CountryID {
			return fmt.Errorf("assignment: %w", game.ErrConflict)
		}
	}
	st.assigned = append(st.assigned, a)
	return nil
}

func (st *state) createQuantities(dest *[]game.Quantity, rows []game.Quantity) error {
	for _, row := range rows {
		for _, existing := range *dest {
			if existing.GameID == row.GameID && existing.ProductID == row.ProductID && existing.CountryID == row.CountryID {
				return fmt.Errorf("quantity: %w", game.ErrConflict)
			}
		}
		if row.Quantity <= 0 {
			return errors.New("quantity must be positive")
		}
		*dest = append(*dest, row)
	}
	return nil
}

func filterQuantities(rows []game.Quantity, gameID uint) []game.Quantity {
	out := make([]game.Quantity, 0)
	for _, row := range rows {
		if row.GameID == gameID {
			out = append(out, row)
		}
	}
	return out
}

func (st *state) upsertTariff(rate game.TariffRate, now time.Time) error {
	rate.UpdatedAt = now
	for i, existing := range st.tariffs {
		if existing.GameID == rate.GameID && existing.RoundID == rate.RoundID &&
			existing.ProductID == rate.ProductID && existing.FromCountryID == rate.FromCountryID &&
			existing.ToCountryID == rate.ToCountryID {
			st.tariffs[i].RatePercent = rate.RatePercent
			st.tariffs[i].UpdatedAt = now
			return nil
		}
	}
	st.tariffs = append(st.tariffs, rate)
	return nil
}

func (st *state) listTariffs(f game.TariffFilter) []game.TariffRate {
	out := make([]game.TariffRate, 0)
	for _, rate := range st.tariffs {
		if f.GameID != 0 && rate.GameID != f.GameID {
			continue
		}
		if f.RoundID != 0 && rate.RoundID != f.RoundID {
			continue
		}
		if f.ProductID != 0 && rate.ProductID != f.ProductID {
			continue
		}
		if f.FromCountryID != 0 && rate.FromCountryID != f.FromCountryID {
			continue
		}
		if f.ToCountryID != 0 && rate.ToCountryID != f.ToCountryID {
			continue
		}
		out = append(out, rate)
	}
	return out
}

func (st *state) createChat(msg *game.ChatMessage, now time.Time) error {
	if strings.TrimSpace(msg.Content) == "" {
		return errors.New("chat content is empty")
	}
	msg.ID = st.id()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	st.chat = append(st.chat, *msg)
	return nil
}

func (st *state) listChat(gameID uint, since time.Time) []game.ChatMessage {
	out := make([]game.ChatMessage, 0)
	for _, msg := range st.chat {
		if msg.GameID != gameID {
			continue
		}
		if !since.IsZero() && !msg.CreatedAt.After(since) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}
